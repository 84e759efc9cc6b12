package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	reportdb "github.com/nao1215/shiftcare/internal/report/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// Server は日報サービスのHTTPサーバー。
type Server struct {
	router  *gin.Engine
	port    string
	queries *reportdb.Queries
	db      *sqlx.DB
	emitter *event.Emitter
	metrics *metrics.Registry
	auth    gin.HandlerFunc
	now     func() time.Time
}

// NewServer は新しい日報サーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, event.NewEmitter(cfg.EventStoreURL), metrics.New("report"), middleware.JWTAuth(cfg.JWTSecret))
	s.router.Use(gin.Logger())
	s.setupRoutes()
	return s, nil
}

func newServer(port string, db *sqlx.DB, emitter *event.Emitter, reg *metrics.Registry, auth gin.HandlerFunc) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:  router,
		port:    port,
		queries: reportdb.New(db),
		db:      db,
		emitter: emitter,
		metrics: reg,
		auth:    auth,
		now:     time.Now,
	}
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(s.auth)
	{
		reports := api.Group("/reports")
		{
			// 日報一覧（クエリパラメータ: date_from, date_to, staff_id, shift_type, status）
			reports.GET("", s.handleList())
			reports.GET("/stats", s.handleStats())
			reports.POST("", s.handleCreate())
			reports.GET("/:id", s.handleGet())
			reports.PUT("/:id", s.handleUpdate())
			// 確認・承認（管理者のみ）
			reports.PUT("/:id/review", middleware.RequireRole(middleware.RoleAdmin), s.handleReview())
			reports.DELETE("/:id", middleware.RequireRole(middleware.RoleAdmin), s.handleDelete())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "report"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "report", "schema_version": version})
	}
}

// reportResponse は日報のJSONレスポンス構造。
type reportResponse struct {
	ID          string       `json:"id"`
	Date        string       `json:"date"`
	StaffID     string       `json:"staff_id"`
	StaffName   string       `json:"staff_name"`
	ShiftType   string       `json:"shift_type"`
	Activities  string       `json:"activities"`
	TeamNotes   string       `json:"team_notes"`
	UserReports []UserReport `json:"user_reports"`
	Summary     Summary      `json:"summary"`
	Status      string       `json:"status"`
	ReviewNotes string       `json:"review_notes,omitempty"`
	ReviewedBy  string       `json:"reviewed_by,omitempty"`
	ReviewedAt  string       `json:"reviewed_at,omitempty"`
	SubmittedAt string       `json:"submitted_at"`
	UpdatedAt   string       `json:"updated_at"`
}

// decodeUsers は保存された利用者記録を読み取る。壊れた値は空として扱う。
func decodeUsers(raw string) []UserReport {
	users := []UserReport{}
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		log.Printf("利用者記録のデコードに失敗: %v", err)
		return []UserReport{}
	}
	return users
}

func toResponse(r reportdb.Report) reportResponse {
	users := decodeUsers(r.UserReports)
	resp := reportResponse{
		ID:          r.ID,
		Date:        r.Date,
		StaffID:     r.StaffID,
		StaffName:   r.StaffName,
		ShiftType:   r.ShiftType,
		Activities:  r.Activities,
		TeamNotes:   r.TeamNotes,
		UserReports: users,
		Summary:     Summarize(users),
		Status:      r.Status,
		ReviewNotes: r.ReviewNotes,
		ReviewedBy:  r.ReviewedBy,
		SubmittedAt: database.RFC3339(r.SubmittedAt),
		UpdatedAt:   database.RFC3339(r.UpdatedAt),
	}
	if r.ReviewedAt != "" {
		resp.ReviewedAt = database.RFC3339(r.ReviewedAt)
	}
	return resp
}

func toData(r reportdb.Report) event.DailyReportData {
	return event.DailyReportData{
		ID:        r.ID,
		Date:      r.Date,
		StaffID:   r.StaffID,
		StaffName: r.StaffName,
		Status:    r.Status,
	}
}

// listQuery は一覧と統計の絞り込み条件。
type listQuery struct {
	DateFrom  string `form:"date_from" binding:"omitempty,date"`
	DateTo    string `form:"date_to" binding:"omitempty,date"`
	StaffID   string `form:"staff_id"`
	ShiftType string `form:"shift_type" binding:"omitempty,oneof=early day late night"`
	Status    string `form:"status" binding:"omitempty,oneof=submitted reviewed approved"`
}

// list は絞り込み条件に合う日報を返す。一般スタッフは自分の日報だけに絞る。
func (s *Server) list(c *gin.Context) ([]reportdb.Report, bool) {
	var q listQuery
	if !validation.BindQuery(c, &q) {
		return nil, false
	}
	if !middleware.IsAdmin(c) {
		q.StaffID = middleware.GetUserID(c)
	}
	rows, err := s.queries.ListReports(c.Request.Context(), reportdb.ListFilter(q))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "日報一覧の取得に失敗しました"})
		log.Printf("日報一覧取得エラー: %v", err)
		return nil, false
	}
	return rows, true
}

func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.list(c)
		if !ok {
			return
		}
		resp := make([]reportResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.list(c)
		if !ok {
			return
		}
		statuses := make([]string, 0, len(rows))
		summaries := make([]Summary, 0, len(rows))
		for _, r := range rows {
			statuses = append(statuses, r.Status)
			summaries = append(summaries, Summarize(decodeUsers(r.UserReports)))
		}
		c.JSON(http.StatusOK, ComputeStats(statuses, summaries))
	}
}

// reportInput は日報の提出・修正リクエスト。
type reportInput struct {
	Date        string       `json:"date" binding:"required,date"`
	ShiftType   string       `json:"shift_type" binding:"required,oneof=early day late night"`
	Activities  string       `json:"activities"`
	TeamNotes   string       `json:"team_notes"`
	UserReports []UserReport `json:"user_reports" binding:"dive"`
}

func encodeUsers(users []UserReport) string {
	if users == nil {
		users = []UserReport{}
	}
	b, _ := json.Marshal(users)
	return string(b)
}

// handleCreate は日報を提出するハンドラ。提出者は操作した利用者。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in reportInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		name := id.Name
		if name == "" {
			name = id.UserID
		}

		now := database.Timestamp(s.now())
		row := reportdb.Report{
			ID:          uuid.New().String(),
			Date:        in.Date,
			StaffID:     id.UserID,
			StaffName:   name,
			ShiftType:   in.ShiftType,
			Activities:  in.Activities,
			TeamNotes:   in.TeamNotes,
			UserReports: encodeUsers(in.UserReports),
			Status:      StatusSubmitted,
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		ctx := c.Request.Context()
		if err := s.queries.CreateReport(ctx, row); err != nil {
			if database.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "この日付の日報は既に提出されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "日報の提出に失敗しました"})
			log.Printf("日報登録エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, row.ID, event.AggregateTypeDailyReport, event.TypeDailyReportSubmitted, toData(row))
		c.JSON(http.StatusCreated, toResponse(row))
	}
}

// load はパスパラメータの日報を取得する。本人と管理者以外には403を返す。
func (s *Server) load(c *gin.Context) (reportdb.Report, bool) {
	row, err := s.queries.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "日報が見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "日報の取得に失敗しました"})
		log.Printf("日報取得エラー: %v", err)
		return row, false
	}
	if !middleware.IsAdmin(c) && row.StaffID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "この日報にアクセスする権限がありません"})
		return row, false
	}
	return row, true
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.load(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toResponse(row))
	}
}

// handleUpdate は日報の本文を修正するハンドラ。
// 本人は確認前（submitted）の日報だけを修正できる。日付は変更できない。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.load(c)
		if !ok {
			return
		}
		if !middleware.IsAdmin(c) && current.Status != StatusSubmitted {
			c.JSON(http.StatusConflict, gin.H{"error": "確認済みの日報は修正できません"})
			return
		}
		var in reportInput
		if !validation.BindJSON(c, &in) {
			return
		}
		if in.Date != current.Date {
			c.JSON(http.StatusBadRequest, gin.H{"error": "日報の日付は変更できません"})
			return
		}

		updated := current
		updated.ShiftType = in.ShiftType
		updated.Activities = in.Activities
		updated.TeamNotes = in.TeamNotes
		updated.UserReports = encodeUsers(in.UserReports)
		updated.UpdatedAt = database.Timestamp(s.now())
		ctx := c.Request.Context()
		if err := s.queries.UpdateContent(ctx, updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "日報の修正に失敗しました"})
			log.Printf("日報更新エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, updated.ID, event.AggregateTypeDailyReport, event.TypeDailyReportUpdated, toData(updated))
		c.JSON(http.StatusOK, toResponse(updated))
	}
}

// reviewInput は確認・承認のリクエスト。
type reviewInput struct {
	Status      string `json:"status" binding:"required,oneof=reviewed approved"`
	ReviewNotes string `json:"review_notes"`
}

// handleReview は日報を確認済みまたは承認済みにするハンドラ。
func (s *Server) handleReview() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in reviewInput
		if !validation.BindJSON(c, &in) {
			return
		}
		current, ok := s.load(c)
		if !ok {
			return
		}
		if err := NextStatus(current.Status, in.Status); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": current.Status})
			return
		}

		id := middleware.GetIdentity(c)
		reviewer := id.Name
		if reviewer == "" {
			reviewer = id.UserID
		}
		now := database.Timestamp(s.now())
		updated := current
		updated.Status = in.Status
		updated.ReviewNotes = in.ReviewNotes
		updated.ReviewedBy = reviewer
		updated.ReviewedAt = now
		updated.UpdatedAt = now

		ctx := c.Request.Context()
		changed, err := s.queries.UpdateStatus(ctx, updated, current.Status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "日報のステータス更新に失敗しました"})
			log.Printf("日報ステータス更新エラー: %v", err)
			return
		}
		if !changed {
			c.JSON(http.StatusConflict, gin.H{"error": ErrInvalidTransition.Error()})
			return
		}

		s.emitter.Emit(ctx, updated.ID, event.AggregateTypeDailyReport, event.TypeDailyReportReviewed, toData(updated))
		c.JSON(http.StatusOK, toResponse(updated))
	}
}

func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.load(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if err := s.queries.DeleteReport(ctx, row.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "日報の削除に失敗しました"})
			log.Printf("日報削除エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, row.ID, event.AggregateTypeDailyReport, event.TypeDailyReportDeleted, toData(row))
		c.JSON(http.StatusOK, gin.H{"message": "日報を削除しました"})
	}
}
