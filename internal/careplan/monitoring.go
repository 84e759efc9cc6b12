package careplan

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	careplandb "github.com/nao1215/shiftcare/internal/careplan/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// monitoringResponse はモニタリング記録のJSONレスポンス構造。
type monitoringResponse struct {
	ID              string            `json:"id"`
	ServiceUserID   string            `json:"service_user_id"`
	ServiceUserName string            `json:"service_user_name"`
	Period          Period            `json:"period"`
	Content         MonitoringContent `json:"content"`
	Status          string            `json:"status"`
	CreatedBy       string            `json:"created_by"`
	CreatorName     string            `json:"creator_name"`
	SubmittedAt     string            `json:"submitted_at,omitempty"`
	ReviewedBy      string            `json:"reviewed_by,omitempty"`
	ReviewedAt      string            `json:"reviewed_at,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

func toMonitoringResponse(r careplandb.MonitoringRecord) monitoringResponse {
	return monitoringResponse{
		ID:              r.ID,
		ServiceUserID:   r.ServiceUserID,
		ServiceUserName: r.ServiceUserName,
		Period:          Period{StartDate: r.PeriodStart, EndDate: r.PeriodEnd},
		Content:         decodeContent[MonitoringContent](r.ID, r.Content),
		Status:          r.Status,
		CreatedBy:       r.CreatedBy,
		CreatorName:     r.CreatorName,
		SubmittedAt:     database.RFC3339(r.SubmittedAt),
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      database.RFC3339(r.ReviewedAt),
		CreatedAt:       database.RFC3339(r.CreatedAt),
		UpdatedAt:       database.RFC3339(r.UpdatedAt),
	}
}

func (s *Server) emitMonitoring(c *gin.Context, r careplandb.MonitoringRecord, eventType event.Type) {
	s.emitter.Emit(c.Request.Context(), r.ID, event.AggregateTypeMonitoringRecord, eventType, event.CarePlanData{
		ID:              r.ID,
		ServiceUserID:   r.ServiceUserID,
		ServiceUserName: r.ServiceUserName,
		Status:          r.Status,
		UpdatedBy:       middleware.GetUserID(c),
	})
}

func (s *Server) loadMonitoring(c *gin.Context, id string) (careplandb.MonitoringRecord, bool) {
	r, err := s.queries.GetMonitoringRecord(c.Request.Context(), id)
	if err != nil {
		notFound(c, err, "モニタリング記録")
		return r, false
	}
	return r, true
}

func (s *Server) handleListMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindList(c)
		if !ok {
			return
		}
		rows, err := s.queries.ListMonitoringRecords(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "モニタリング記録の取得に失敗しました"})
			log.Printf("モニタリング記録一覧取得エラー: %v", err)
			return
		}
		resp := make([]monitoringResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toMonitoringResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// monitoringInput はモニタリング記録の登録リクエスト。
type monitoringInput struct {
	ServiceUserID   string            `json:"service_user_id" binding:"required,max=50"`
	ServiceUserName string            `json:"service_user_name" binding:"required,max=100"`
	Period          Period            `json:"period"`
	Content         MonitoringContent `json:"content"`
}

func (s *Server) handleCreateMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in monitoringInput
		if !validation.BindJSON(c, &in) || !checkPeriod(c, in.Period) {
			return
		}
		content, _ := json.Marshal(in.Content)
		id := middleware.GetIdentity(c)
		now := database.Timestamp(s.now())
		row := careplandb.MonitoringRecord{
			ID:              uuid.New().String(),
			ServiceUserID:   in.ServiceUserID,
			ServiceUserName: in.ServiceUserName,
			PeriodStart:     in.Period.StartDate,
			PeriodEnd:       in.Period.EndDate,
			Content:         string(content),
			Status:          StatusDraft,
			CreatedBy:       id.UserID,
			CreatorName:     displayName(id),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.queries.CreateMonitoringRecord(c.Request.Context(), row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "モニタリング記録の登録に失敗しました"})
			log.Printf("モニタリング記録登録エラー: %v", err)
			return
		}

		s.emitMonitoring(c, row, event.TypeMonitoringRecordSaved)
		c.JSON(http.StatusCreated, toMonitoringResponse(row))
	}
}

func (s *Server) handleGetMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadMonitoring(c, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toMonitoringResponse(row))
	}
}

// contentUpdate は本文の更新リクエスト。Tは記録の種類ごとの本文の型。
type contentUpdate[T any] struct {
	Period  Period `json:"period"`
	Content T      `json:"content"`
}

// handleUpdateMonitoring は下書きのモニタリング記録の期間と本文を書き換えるハンドラ。
func (s *Server) handleUpdateMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadMonitoring(c, c.Param("id"))
		if !ok {
			return
		}
		if !canModify(c, row.CreatedBy) {
			c.JSON(http.StatusForbidden, gin.H{"error": "作成者以外は編集できません"})
			return
		}
		var in contentUpdate[MonitoringContent]
		if !validation.BindJSON(c, &in) || !checkPeriod(c, in.Period) {
			return
		}

		content, _ := json.Marshal(in.Content)
		now := database.Timestamp(s.now())
		n, err := s.queries.UpdateMonitoringContent(c.Request.Context(), row.ID, in.Period.StartDate, in.Period.EndDate, string(content), now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "モニタリング記録の更新に失敗しました"})
			log.Printf("モニタリング記録更新エラー: %v", err)
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "下書きの記録だけを編集できます"})
			return
		}

		row.PeriodStart, row.PeriodEnd, row.Content, row.UpdatedAt = in.Period.StartDate, in.Period.EndDate, string(content), now
		s.emitMonitoring(c, row, event.TypeMonitoringRecordSaved)
		c.JSON(http.StatusOK, toMonitoringResponse(row))
	}
}

// handleMonitoringStatus はモニタリング記録を作成完了・提出済みに進める、または下書きに戻すハンドラ。
func (s *Server) handleMonitoringStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadMonitoring(c, c.Param("id"))
		if !ok {
			return
		}
		if !canModify(c, row.CreatedBy) {
			c.JSON(http.StatusForbidden, gin.H{"error": "作成者以外は状態を変更できません"})
			return
		}
		var in statusInput
		if !validation.BindJSON(c, &in) || !checkTransition(c, row.Status, in.Status) {
			return
		}

		now := database.Timestamp(s.now())
		n, err := s.queries.SetMonitoringStatus(c.Request.Context(), row.ID, row.Status, in.Status, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "モニタリング記録の更新に失敗しました"})
			log.Printf("モニタリング記録状態変更エラー: %v", err)
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "記録の状態が他の操作で変更されました"})
			return
		}

		row.Status, row.UpdatedAt = in.Status, now
		row.SubmittedAt = ""
		if in.Status == StatusSubmitted {
			row.SubmittedAt = now
		}
		s.emitMonitoring(c, row, event.TypeMonitoringRecordStatusChanged)
		c.JSON(http.StatusOK, toMonitoringResponse(row))
	}
}

// handleReviewMonitoring は提出済みのモニタリング記録を管理者が確認済みにするハンドラ。
func (s *Server) handleReviewMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadMonitoring(c, c.Param("id"))
		if !ok {
			return
		}
		id := middleware.GetIdentity(c)
		now := database.Timestamp(s.now())
		n, err := s.queries.ReviewMonitoringRecord(c.Request.Context(), row.ID, displayName(id), now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "モニタリング記録の更新に失敗しました"})
			log.Printf("モニタリング記録確認エラー: %v", err)
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "未確認の提出済み記録だけを確認できます"})
			return
		}

		row.ReviewedBy, row.ReviewedAt, row.UpdatedAt = displayName(id), now, now
		s.emitMonitoring(c, row, event.TypeMonitoringRecordStatusChanged)
		c.JSON(http.StatusOK, toMonitoringResponse(row))
	}
}

func (s *Server) handleExportMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadMonitoring(c, c.Param("id"))
		if !ok {
			return
		}
		data, err := MonitoringPDF(s.docOptions, row, decodeContent[MonitoringContent](row.ID, row.Content), s.now())
		writePDF(c, MonitoringFilename(row), data, err)
	}
}
