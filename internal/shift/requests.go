package shift

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	shiftdb "github.com/nao1215/shiftcare/internal/shift/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// 休日希望の状態。
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// requestResponse は休日希望のJSONレスポンス構造。
type requestResponse struct {
	ID             string   `json:"id"`
	StaffID        string   `json:"staff_id"`
	StaffName      string   `json:"staff_name"`
	TargetMonth    string   `json:"target_month"`
	RequestedDates []string `json:"requested_dates"`
	Reason         string   `json:"reason"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	ReviewedBy     string   `json:"reviewed_by,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func toRequestResponse(r shiftdb.Request) requestResponse {
	dates := []string{}
	if err := json.Unmarshal([]byte(r.RequestedDates), &dates); err != nil {
		log.Printf("希望日の解析に失敗 (id=%s): %v", r.ID, err)
		dates = []string{}
	}
	return requestResponse{
		ID:             r.ID,
		StaffID:        r.StaffID,
		StaffName:      r.StaffName,
		TargetMonth:    r.TargetMonth,
		RequestedDates: dates,
		Reason:         r.Reason,
		Priority:       r.Priority,
		Status:         r.Status,
		ReviewedBy:     r.ReviewedBy,
		CreatedAt:      database.RFC3339(r.CreatedAt),
		UpdatedAt:      database.RFC3339(r.UpdatedAt),
	}
}

func toRequestRow(r shiftdb.Request) *event.ShiftRequestRow {
	return &event.ShiftRequestRow{
		ID:          r.ID,
		StaffID:     r.StaffID,
		StaffName:   r.StaffName,
		TargetMonth: r.TargetMonth,
		Status:      r.Status,
	}
}

// requestInput は休日希望の提出リクエスト。
type requestInput struct {
	// StaffID は提出するスタッフ。空の場合は操作した利用者。
	StaffID        string   `json:"staff_id"`
	TargetMonth    string   `json:"target_month" binding:"required,yearmonth"`
	RequestedDates []string `json:"requested_dates" binding:"required,min=1,dive,date"`
	Reason         string   `json:"reason"`
	Priority       string   `json:"priority" binding:"omitempty,oneof=low medium high"`
}

// normalizeDates は希望日を重複なく昇順に並べ、対象月以外の日付があればエラーを返す。
func normalizeDates(month string, dates []string) ([]string, error) {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if d[:7] != month {
			return nil, fmt.Errorf("希望日 %s は対象月 %s ではありません", d, month)
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out, nil
}

// handleCreateRequest は休日希望を提出するハンドラ。
// 一般スタッフは自分の分だけ、管理者は任意のスタッフの分を提出できる。
func (s *Server) handleCreateRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in requestInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		if in.StaffID == "" {
			in.StaffID = id.UserID
		}
		if id.Role != middleware.RoleAdmin && in.StaffID != id.UserID {
			c.JSON(http.StatusForbidden, gin.H{"error": "他のスタッフの休日希望は提出できません"})
			return
		}
		dates, err := normalizeDates(in.TargetMonth, in.RequestedDates)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		staff, err := s.directory.Lookup(ctx, in.StaffID)
		if err != nil {
			writeCheckError(c, err)
			return
		}
		if staff == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "スタッフが見つかりません"})
			return
		}

		if in.Priority == "" {
			in.Priority = "medium"
		}
		encoded, _ := json.Marshal(dates)
		now := database.Timestamp(s.now())
		row := shiftdb.Request{
			ID:             uuid.New().String(),
			StaffID:        in.StaffID,
			StaffName:      staff.Name,
			TargetMonth:    in.TargetMonth,
			RequestedDates: string(encoded),
			Reason:         in.Reason,
			Priority:       in.Priority,
			Status:         RequestPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.queries.CreateRequest(ctx, row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "休日希望の提出に失敗しました"})
			log.Printf("休日希望登録エラー: %v", err)
			return
		}

		event.EmitChange(ctx, s.emitter, row.ID, event.AggregateTypeShiftRequest, event.TypeShiftRequestCreated, nil, toRequestRow(row))
		c.JSON(http.StatusCreated, toRequestResponse(row))
	}
}

// handleListRequests は休日希望一覧を返すハンドラ。一般スタッフには自分の分だけを返す。
func (s *Server) handleListRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, ok := monthQuery(c)
		if !ok {
			return
		}
		f := shiftdb.RequestFilter{TargetMonth: month, Status: c.Query("status")}
		if f.Status != "" && f.Status != RequestPending && f.Status != RequestApproved && f.Status != RequestRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "statusはpending, approved, rejectedのいずれかで指定してください"})
			return
		}
		if middleware.IsAdmin(c) {
			f.StaffID = c.Query("staff_id")
		} else {
			f.StaffID = middleware.GetUserID(c)
		}

		rows, err := s.queries.ListRequests(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "休日希望一覧の取得に失敗しました"})
			log.Printf("休日希望一覧取得エラー: %v", err)
			return
		}
		resp := make([]requestResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toRequestResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// loadRequest はパスパラメータの休日希望を取得する。
// 管理者以外が他のスタッフの休日希望を指定した場合は403を書き込む。
func (s *Server) loadRequest(c *gin.Context) (shiftdb.Request, bool) {
	row, err := s.queries.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "休日希望が見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "休日希望の取得に失敗しました"})
		log.Printf("休日希望取得エラー: %v", err)
		return row, false
	}
	if !middleware.IsAdmin(c) && row.StaffID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "この休日希望にアクセスする権限がありません"})
		return row, false
	}
	return row, true
}

func (s *Server) handleGetRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadRequest(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toRequestResponse(row))
	}
}

// handleReviewRequest は休日希望を承認・却下するハンドラ。pendingの休日希望だけを処理できる。
func (s *Server) handleReviewRequest(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.loadRequest(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		now := database.Timestamp(s.now())
		reviewer := middleware.GetUserID(c)
		changed, err := s.queries.UpdateRequestStatus(ctx, current.ID, RequestPending, status, reviewer, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "休日希望の更新に失敗しました"})
			log.Printf("休日希望更新エラー: %v", err)
			return
		}
		if !changed {
			c.JSON(http.StatusConflict, gin.H{"error": "この休日希望は既に処理されています", "status": current.Status})
			return
		}

		updated := current
		updated.Status = status
		updated.ReviewedBy = reviewer
		updated.UpdatedAt = now
		event.EmitChange(ctx, s.emitter, updated.ID, event.AggregateTypeShiftRequest, event.TypeShiftRequestUpdated, toRequestRow(current), toRequestRow(updated))
		c.JSON(http.StatusOK, toRequestResponse(updated))
	}
}

// handleDeleteRequest は休日希望を取り下げるハンドラ。
// 提出したスタッフはpendingの間だけ、管理者はいつでも削除できる。
func (s *Server) handleDeleteRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadRequest(c)
		if !ok {
			return
		}
		if !middleware.IsAdmin(c) && row.Status != RequestPending {
			c.JSON(http.StatusConflict, gin.H{"error": "処理済みの休日希望は取り下げられません"})
			return
		}

		if err := s.queries.DeleteRequest(c.Request.Context(), row.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "休日希望の削除に失敗しました"})
			log.Printf("休日希望削除エラー: %v", err)
			return
		}

		event.EmitChange(c.Request.Context(), s.emitter, row.ID, event.AggregateTypeShiftRequest, event.TypeShiftRequestDeleted, toRequestRow(row), nil)
		c.JSON(http.StatusOK, gin.H{"message": "休日希望を削除しました"})
	}
}
