package shift

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	shiftdb "github.com/nao1215/shiftcare/internal/shift/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// areaResponse は配置エリアのJSONレスポンス構造。
type areaResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	RequiredStaff map[string]int `json:"required_staff"`
	MaxCapacity   int            `json:"max_capacity"`
	Priority      int            `json:"priority"`
	Color         string         `json:"color"`
}

func toAreaResponse(a shiftdb.Area) areaResponse {
	required := make(map[string]int, len(ShiftTypes))
	for _, st := range ShiftTypes {
		required[st] = Required(a, st)
	}
	return areaResponse{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		RequiredStaff: required,
		MaxCapacity:   a.MaxCapacity,
		Priority:      a.Priority,
		Color:         a.Color,
	}
}

// assignmentResponse はエリア配置のJSONレスポンス構造。
type assignmentResponse struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
	AreaID    string `json:"area_id"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsLeader  bool   `json:"is_leader"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toAssignmentResponse(a shiftdb.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:        a.ID,
		StaffID:   a.StaffID,
		StaffName: a.StaffName,
		AreaID:    a.AreaID,
		Date:      a.Date,
		ShiftType: a.ShiftType,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		IsLeader:  a.IsLeader,
		Notes:     a.Notes,
		CreatedAt: database.RFC3339(a.CreatedAt),
		UpdatedAt: database.RFC3339(a.UpdatedAt),
	}
}

func toAssignmentRow(a shiftdb.Assignment) *event.AssignmentRow {
	return &event.AssignmentRow{
		ID:        a.ID,
		StaffID:   a.StaffID,
		StaffName: a.StaffName,
		AreaID:    a.AreaID,
		Date:      a.Date,
		ShiftType: a.ShiftType,
		IsLeader:  a.IsLeader,
	}
}

// dateQuery はYYYY-MM-DD形式の必須のdateクエリ。
type dateQuery struct {
	Date string `form:"date" binding:"required,date"`
}

// loadArea はエリアを取得する。存在しない場合は400を書き込む。
func (s *Server) loadArea(c *gin.Context, id string) (shiftdb.Area, bool) {
	area, err := s.queries.GetArea(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "配置エリアが見つかりません"})
			return area, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "配置エリアの取得に失敗しました"})
		log.Printf("配置エリア取得エラー: %v", err)
		return area, false
	}
	return area, true
}

// loadAssignment はパスパラメータの配置を取得する。
func (s *Server) loadAssignment(c *gin.Context) (shiftdb.Assignment, bool) {
	row, err := s.queries.GetAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "配置が見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "配置の取得に失敗しました"})
		log.Printf("配置取得エラー: %v", err)
		return row, false
	}
	return row, true
}

// staffingAfter は配置を変更した後のエリア・シフト種別の人数を判定する。
func (s *Server) staffingAfter(c *gin.Context, area shiftdb.Area, a shiftdb.Assignment) *StaffingCheck {
	n, err := s.queries.CountAssigned(c.Request.Context(), area.ID, a.Date, a.ShiftType)
	if err != nil {
		log.Printf("配置人数の取得エラー: %v", err)
		return nil
	}
	check := ValidateAreaStaffing(area, a.ShiftType, n)
	return &check
}

func (s *Server) handleListAreas() gin.HandlerFunc {
	return func(c *gin.Context) {
		areas, err := s.queries.ListAreas(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置エリアの取得に失敗しました"})
			log.Printf("配置エリア一覧取得エラー: %v", err)
			return
		}
		resp := make([]areaResponse, 0, len(areas))
		for _, a := range areas {
			resp = append(resp, toAreaResponse(a))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleListAssignments はその日の配置一覧を返すハンドラ。
func (s *Server) handleListAssignments() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q dateQuery
		if !validation.BindQuery(c, &q) {
			return
		}
		rows, err := s.queries.ListAssignmentsOnDate(c.Request.Context(), q.Date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置一覧の取得に失敗しました"})
			log.Printf("配置一覧取得エラー: %v", err)
			return
		}
		resp := make([]assignmentResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toAssignmentResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleAssignmentSummary はその日のエリア別充足率と配置アラートを返すハンドラ。
func (s *Server) handleAssignmentSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q dateQuery
		if !validation.BindQuery(c, &q) {
			return
		}
		ctx := c.Request.Context()
		areas, err := s.queries.ListAreas(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置エリアの取得に失敗しました"})
			log.Printf("配置エリア一覧取得エラー: %v", err)
			return
		}
		rows, err := s.queries.ListAssignmentsOnDate(ctx, q.Date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置一覧の取得に失敗しました"})
			log.Printf("配置一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, Summarize(q.Date, areas, rows))
	}
}

// staffingQuery は配置人数チェックのクエリパラメータ。
type staffingQuery struct {
	AreaID    string `form:"area_id" binding:"required"`
	ShiftType string `form:"shift_type" binding:"required,oneof=early day late night"`
	Count     *int   `form:"count" binding:"required,gte=0"`
}

// handleValidateStaffing は指定した人数でエリアの必要人数と定員を満たすかを返すハンドラ。
func (s *Server) handleValidateStaffing() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q staffingQuery
		if !validation.BindQuery(c, &q) {
			return
		}
		area, ok := s.loadArea(c, q.AreaID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, ValidateAreaStaffing(area, q.ShiftType, *q.Count))
	}
}

// assignmentInput はエリア配置の登録リクエスト。
type assignmentInput struct {
	StaffID   string `json:"staff_id" binding:"required"`
	AreaID    string `json:"area_id" binding:"required"`
	Date      string `json:"date" binding:"required,date"`
	ShiftType string `json:"shift_type" binding:"required,oneof=early day late night"`
	// StartTime, EndTime が両方空の場合はシフト種別の標準時刻を使う。
	StartTime string `json:"start_time" binding:"omitempty,hhmm"`
	EndTime   string `json:"end_time" binding:"omitempty,hhmm"`
	IsLeader  bool   `json:"is_leader"`
	Notes     string `json:"notes" binding:"max=500"`
}

// handleCreateAssignment はスタッフをエリアに配置するハンドラ。
// 同じスタッフを同じ日・同じシフト種別に重ねて配置することはできない。
func (s *Server) handleCreateAssignment() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in assignmentInput
		if !validation.BindJSON(c, &in) {
			return
		}
		area, ok := s.loadArea(c, in.AreaID)
		if !ok {
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

		start, end := applyDefaultTimes(in.ShiftType, in.StartTime, in.EndTime)
		now := database.Timestamp(s.now())
		row := shiftdb.Assignment{
			ID:        uuid.New().String(),
			StaffID:   in.StaffID,
			StaffName: staff.Name,
			AreaID:    area.ID,
			Date:      in.Date,
			ShiftType: in.ShiftType,
			StartTime: start,
			EndTime:   end,
			IsLeader:  in.IsLeader,
			Notes:     in.Notes,
			CreatedBy: middleware.GetUserID(c),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.queries.CreateAssignment(ctx, row); err != nil {
			if database.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "このスタッフは同じ日の同じシフトに配置済みです"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置の登録に失敗しました"})
			log.Printf("配置登録エラー: %v", err)
			return
		}

		event.EmitChange(ctx, s.emitter, row.ID, event.AggregateTypeAssignment, event.TypeAssignmentCreated, nil, toAssignmentRow(row))
		c.JSON(http.StatusCreated, gin.H{"assignment": toAssignmentResponse(row), "staffing": s.staffingAfter(c, area, row)})
	}
}

type moveInput struct {
	AreaID string `json:"area_id" binding:"required"`
}

// handleMoveAssignment は配置先のエリアを変更するハンドラ。
func (s *Server) handleMoveAssignment() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.loadAssignment(c)
		if !ok {
			return
		}
		var in moveInput
		if !validation.BindJSON(c, &in) {
			return
		}
		area, ok := s.loadArea(c, in.AreaID)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		now := database.Timestamp(s.now())
		if err := s.queries.MoveAssignment(ctx, current.ID, area.ID, now); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置の変更に失敗しました"})
			log.Printf("配置変更エラー: %v", err)
			return
		}

		moved := current
		moved.AreaID = area.ID
		moved.UpdatedAt = now
		event.EmitChange(ctx, s.emitter, moved.ID, event.AggregateTypeAssignment, event.TypeAssignmentMoved, toAssignmentRow(current), toAssignmentRow(moved))
		c.JSON(http.StatusOK, gin.H{"assignment": toAssignmentResponse(moved), "staffing": s.staffingAfter(c, area, moved)})
	}
}

func (s *Server) handleDeleteAssignment() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadAssignment(c)
		if !ok {
			return
		}
		if err := s.queries.DeleteAssignment(c.Request.Context(), row.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配置の削除に失敗しました"})
			log.Printf("配置削除エラー: %v", err)
			return
		}

		event.EmitChange(c.Request.Context(), s.emitter, row.ID, event.AggregateTypeAssignment, event.TypeAssignmentDeleted, toAssignmentRow(row), nil)
		c.JSON(http.StatusOK, gin.H{"message": "配置を削除しました"})
	}
}
