package complaint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	complaintdb "github.com/nao1215/shiftcare/internal/complaint/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// Server は苦情・要望サービスのHTTPサーバー。
type Server struct {
	router     *gin.Engine
	port       string
	queries    *complaintdb.Queries
	db         *sqlx.DB
	emitter    *event.Emitter
	metrics    *metrics.Registry
	auth       gin.HandlerFunc
	docOptions document.Options
	now        func() time.Time
}

// NewServer は新しい苦情・要望サーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, event.NewEmitter(cfg.EventStoreURL), metrics.New("complaint"), middleware.JWTAuth(cfg.JWTSecret))
	s.docOptions = document.Options{
		FontPath:     cfg.FontPath,
		LogoPath:     cfg.FacilityLogoPath,
		FacilityName: cfg.FacilityName,
	}
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
		queries: complaintdb.New(db),
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
		complaints := api.Group("/complaints")
		{
			// 受付はスタッフも行う
			complaints.POST("", s.handleCreate())

			admin := complaints.Group("")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			{
				// 一覧（クエリパラメータ: status, type, q, sort）
				admin.GET("", s.handleList())
				admin.GET("/stats", s.handleStats())
				admin.GET("/export.pdf", s.handleExportList())
				admin.GET("/:id", s.handleGet())
				admin.POST("/:id/responses", s.handleRespond())
				admin.POST("/:id/resolve", s.handleResolve())
				admin.GET("/:id/export.pdf", s.handleExportReport())
			}
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "complaint"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "complaint", "schema_version": version})
	}
}

// complaintResponse は苦情・要望のJSONレスポンス構造。
type complaintResponse struct {
	ID              string `json:"id"`
	SubmittedBy     string `json:"submitted_by"`
	ReceiverName    string `json:"receiver_name"`
	SubmittedAt     string `json:"submitted_at"`
	ComplainantType string `json:"complainant_type"`
	ComplainantName string `json:"complainant_name"`
	ComplaintDate   string `json:"complaint_date"`
	Content         string `json:"content"`
	Status          string `json:"status"`
	ResolvedAt      string `json:"resolved_at,omitempty"`
	UpdatedAt       string `json:"updated_at"`
	ResponseCount   int    `json:"response_count"`
}

// recordResponse は対応記録のJSONレスポンス構造。
type recordResponse struct {
	ID            string `json:"id"`
	RespondedAt   string `json:"responded_at"`
	RespondedBy   string `json:"responded_by"`
	ResponderName string `json:"responder_name"`
	Content       string `json:"content"`
}

// detailResponse は対応履歴を含む苦情・要望のJSONレスポンス構造。
type detailResponse struct {
	complaintResponse
	Responses []recordResponse `json:"responses"`
}

func toResponse(c complaintdb.Complaint) complaintResponse {
	resolvedAt := ""
	if c.ResolvedAt != "" {
		resolvedAt = database.RFC3339(c.ResolvedAt)
	}
	return complaintResponse{
		ID:              c.ID,
		SubmittedBy:     c.SubmittedBy,
		ReceiverName:    c.ReceiverName,
		SubmittedAt:     database.RFC3339(c.SubmittedAt),
		ComplainantType: c.ComplainantType,
		ComplainantName: c.ComplainantName,
		ComplaintDate:   c.ComplaintDate,
		Content:         c.Content,
		Status:          c.Status,
		ResolvedAt:      resolvedAt,
		UpdatedAt:       database.RFC3339(c.UpdatedAt),
		ResponseCount:   c.ResponseCount,
	}
}

func toDetail(c complaintdb.Complaint, responses []complaintdb.Response) detailResponse {
	d := detailResponse{complaintResponse: toResponse(c), Responses: make([]recordResponse, 0, len(responses))}
	for _, r := range responses {
		d.Responses = append(d.Responses, recordResponse{
			ID:            r.ID,
			RespondedAt:   database.RFC3339(r.RespondedAt),
			RespondedBy:   r.RespondedBy,
			ResponderName: r.ResponderName,
			Content:       r.Content,
		})
	}
	return d
}

func toData(c complaintdb.Complaint) event.ComplaintData {
	return event.ComplaintData{
		ID:              c.ID,
		ComplainantType: c.ComplainantType,
		Status:          c.Status,
		ReceivedBy:      c.SubmittedBy,
	}
}

func displayName(id middleware.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.UserID
}

// listQuery は一覧・統計・一覧PDFの絞り込み条件。
type listQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending in_progress resolved"`
	Type   string `form:"type" binding:"omitempty,oneof=user family other"`
	Search string `form:"q" binding:"max=100"`
	Sort   string `form:"sort" binding:"omitempty,oneof=newest oldest"`
}

func (s *Server) list(c *gin.Context) ([]complaintdb.Complaint, bool) {
	var q listQuery
	if !validation.BindQuery(c, &q) {
		return nil, false
	}
	rows, err := s.queries.ListComplaints(c.Request.Context(), complaintdb.ListFilter{
		Status: q.Status,
		Type:   q.Type,
		Search: q.Search,
		Oldest: q.Sort == "oldest",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "苦情・要望一覧の取得に失敗しました"})
		log.Printf("苦情・要望一覧取得エラー: %v", err)
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
		resp := make([]complaintResponse, 0, len(rows))
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
		for _, r := range rows {
			statuses = append(statuses, r.Status)
		}
		c.JSON(http.StatusOK, ComputeStats(statuses))
	}
}

// createInput は苦情・要望の受付リクエスト。申し出人氏名は空でもよい（匿名）。
type createInput struct {
	ComplainantType string `json:"complainant_type" binding:"required,oneof=user family other"`
	ComplainantName string `json:"complainant_name" binding:"max=100"`
	ComplaintDate   string `json:"complaint_date" binding:"required,date"`
	Content         string `json:"content" binding:"required"`
}

func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		now := database.Timestamp(s.now())
		row := complaintdb.Complaint{
			ID:              uuid.New().String(),
			SubmittedBy:     id.UserID,
			ReceiverName:    displayName(id),
			SubmittedAt:     now,
			ComplainantType: in.ComplainantType,
			ComplainantName: in.ComplainantName,
			ComplaintDate:   in.ComplaintDate,
			Content:         in.Content,
			Status:          StatusPending,
			UpdatedAt:       now,
		}
		ctx := c.Request.Context()
		if err := s.queries.CreateComplaint(ctx, row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "苦情・要望の受付に失敗しました"})
			log.Printf("苦情・要望登録エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, row.ID, event.AggregateTypeComplaint, event.TypeComplaintReceived, toData(row))
		c.JSON(http.StatusCreated, toResponse(row))
	}
}

func (s *Server) load(c *gin.Context) (complaintdb.Complaint, bool) {
	row, err := s.queries.GetComplaint(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "苦情・要望が見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "苦情・要望の取得に失敗しました"})
		log.Printf("苦情・要望取得エラー: %v", err)
		return row, false
	}
	return row, true
}

// loadDetail は苦情・要望と対応履歴を取得する。
func (s *Server) loadDetail(c *gin.Context) (complaintdb.Complaint, []complaintdb.Response, bool) {
	row, ok := s.load(c)
	if !ok {
		return row, nil, false
	}
	responses, err := s.queries.ListResponses(c.Request.Context(), row.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "対応履歴の取得に失敗しました"})
		log.Printf("対応履歴取得エラー: %v", err)
		return row, nil, false
	}
	return row, responses, true
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, responses, ok := s.loadDetail(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toDetail(row, responses))
	}
}

// respondInput は対応記録の追加リクエスト。
type respondInput struct {
	Content string `json:"content" binding:"required"`
}

// addResponse は対応記録を追加し、対応状況を進める。追加後の苦情・要望を返す。
func (s *Server) addResponse(ctx context.Context, current complaintdb.Complaint, rec complaintdb.Response) (complaintdb.Complaint, error) {
	next, err := StatusAfterResponse(current.Status)
	if err != nil {
		return current, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return current, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	changed, err := q.UpdateStatus(ctx, current.ID, next, "", rec.RespondedAt)
	if err != nil {
		return current, fmt.Errorf("対応状況の更新に失敗: %w", err)
	}
	if !changed {
		return current, ErrResolved
	}
	if err := q.CreateResponse(ctx, rec); err != nil {
		return current, fmt.Errorf("対応記録の保存に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return current, fmt.Errorf("コミットに失敗: %w", err)
	}

	updated := current
	updated.Status = next
	updated.UpdatedAt = rec.RespondedAt
	updated.ResponseCount++
	return updated, nil
}

// handleRespond は対応記録を追加するハンドラ。未対応の苦情・要望は対応中になる。
func (s *Server) handleRespond() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in respondInput
		if !validation.BindJSON(c, &in) {
			return
		}
		current, ok := s.load(c)
		if !ok {
			return
		}
		id := middleware.GetIdentity(c)
		rec := complaintdb.Response{
			ID:            uuid.New().String(),
			ComplaintID:   current.ID,
			RespondedAt:   database.Timestamp(s.now()),
			RespondedBy:   id.UserID,
			ResponderName: displayName(id),
			Content:       in.Content,
		}

		ctx := c.Request.Context()
		updated, err := s.addResponse(ctx, current, rec)
		if err != nil {
			if errors.Is(err, ErrResolved) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "対応記録の追加に失敗しました"})
			log.Printf("対応記録追加エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, updated.ID, event.AggregateTypeComplaint, event.TypeComplaintResponded, toData(updated))
		responses, err := s.queries.ListResponses(ctx, updated.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "対応履歴の取得に失敗しました"})
			log.Printf("対応履歴取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusCreated, toDetail(updated, responses))
	}
}

// handleResolve は苦情・要望を解決済みにするハンドラ。解決日は操作した日時。
func (s *Server) handleResolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.load(c)
		if !ok {
			return
		}
		if current.Status == StatusResolved {
			c.JSON(http.StatusConflict, gin.H{"error": ErrResolved.Error()})
			return
		}

		ctx := c.Request.Context()
		now := database.Timestamp(s.now())
		changed, err := s.queries.UpdateStatus(ctx, current.ID, StatusResolved, now, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "対応状況の変更に失敗しました"})
			log.Printf("苦情・要望解決エラー: %v", err)
			return
		}
		if !changed {
			c.JSON(http.StatusConflict, gin.H{"error": ErrResolved.Error()})
			return
		}

		updated := current
		updated.Status = StatusResolved
		updated.ResolvedAt = now
		updated.UpdatedAt = now
		s.emitter.Emit(ctx, updated.ID, event.AggregateTypeComplaint, event.TypeComplaintResolved, toData(updated))
		c.JSON(http.StatusOK, toResponse(updated))
	}
}

// handleExportReport は対応報告書1件をPDFで返すハンドラ。
func (s *Server) handleExportReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, responses, ok := s.loadDetail(c)
		if !ok {
			return
		}
		data, err := ReportPDF(s.docOptions, row, responses, s.now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
			log.Printf("対応報告書のPDF出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ReportFilename(row)))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

// handleExportList は絞り込んだ苦情・要望の一覧をPDFで返すハンドラ。
func (s *Server) handleExportList() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.list(c)
		if !ok {
			return
		}
		now := s.now()
		data, err := ListPDF(s.docOptions, rows, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
			log.Printf("苦情・要望一覧のPDF出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ListFilename(now)))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}
