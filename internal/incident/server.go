package incident

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

	incidentdb "github.com/nao1215/shiftcare/internal/incident/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/httpclient"
	"github.com/nao1215/shiftcare/pkg/mail"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// appName はメールの件名と送信者名に使うアプリケーション名。
const appName = "ShiftCare"

// Server は事故報告サービスのHTTPサーバー。
type Server struct {
	router     *gin.Engine
	port       string
	queries    *incidentdb.Queries
	db         *sqlx.DB
	emitter    *event.Emitter
	alerter    Alerter
	metrics    *metrics.Registry
	auth       gin.HandlerFunc
	docOptions document.Options
	now        func() time.Time
}

// NewServer は新しい事故報告サーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	staff := httpclient.New(cfg.StaffURL, httpclient.WithTokenFunc(middleware.ServiceTokenFunc(cfg.JWTSecret, "incident")))
	alerter := NewMailAlerter(staff, mail.New(cfg.SendGridKey, appName, cfg.MailFrom))

	s := newServer(cfg.Port, db, event.NewEmitter(cfg.EventStoreURL), alerter, metrics.New("incident"), middleware.JWTAuth(cfg.JWTSecret))
	s.docOptions = document.Options{
		FontPath:     cfg.FontPath,
		LogoPath:     cfg.FacilityLogoPath,
		FacilityName: cfg.FacilityName,
	}
	s.router.Use(gin.Logger())
	s.setupRoutes()
	return s, nil
}

func newServer(port string, db *sqlx.DB, emitter *event.Emitter, alerter Alerter, reg *metrics.Registry, auth gin.HandlerFunc) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:  router,
		port:    port,
		queries: incidentdb.New(db),
		db:      db,
		emitter: emitter,
		alerter: alerter,
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
		incidents := api.Group("/incidents")
		{
			// 報告一覧（クエリパラメータ: type, status, from, to）
			incidents.GET("", s.handleList())
			incidents.GET("/stats", s.handleStats())
			incidents.GET("/export.pdf", s.handleExportList())
			incidents.POST("", s.handleCreate())
			incidents.GET("/:id", s.handleGet())
			incidents.PUT("/:id", s.handleUpdate())
			// 対応状況の変更（管理者のみ）
			incidents.PUT("/:id/status", middleware.RequireRole(middleware.RoleAdmin), s.handleChangeStatus())
			incidents.GET("/:id/export.pdf", s.handleExportReport())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "incident"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "incident", "schema_version": version})
	}
}

// incidentResponse は報告のJSONレスポンス構造。
type incidentResponse struct {
	ID                 string   `json:"id"`
	ReportedBy         string   `json:"reported_by"`
	ReporterName       string   `json:"reporter_name"`
	ReportedAt         string   `json:"reported_at"`
	OccurredAt         string   `json:"occurred_at"`
	Type               string   `json:"incident_type"`
	Location           string   `json:"location"`
	InvolvedPersons    []string `json:"involved_persons"`
	Description        string   `json:"description"`
	Response           string   `json:"response"`
	PreventiveMeasures string   `json:"preventive_measures"`
	Status             string   `json:"status"`
	UpdatedBy          string   `json:"updated_by,omitempty"`
	UpdatedAt          string   `json:"updated_at"`
}

func toResponse(i incidentdb.Incident) incidentResponse {
	return incidentResponse{
		ID:                 i.ID,
		ReportedBy:         i.ReportedBy,
		ReporterName:       i.ReporterName,
		ReportedAt:         database.RFC3339(i.ReportedAt),
		OccurredAt:         i.OccurredAt,
		Type:               i.Type,
		Location:           i.Location,
		InvolvedPersons:    persons(i.InvolvedPersons),
		Description:        i.Description,
		Response:           i.Response,
		PreventiveMeasures: i.PreventiveMeasures,
		Status:             i.Status,
		UpdatedBy:          i.UpdatedBy,
		UpdatedAt:          database.RFC3339(i.UpdatedAt),
	}
}

func toData(i incidentdb.Incident) event.IncidentData {
	return event.IncidentData{
		ID:         i.ID,
		Type:       i.Type,
		Location:   i.Location,
		ReportedBy: i.ReportedBy,
		Status:     i.Status,
		OccurredAt: i.OccurredAt,
	}
}

// listQuery は一覧・統計・一覧PDFの絞り込み条件。
type listQuery struct {
	Type   string `form:"type" binding:"omitempty,oneof=accident nearMiss"`
	Status string `form:"status" binding:"omitempty,oneof=pending in_progress completed"`
	From   string `form:"from" binding:"omitempty,date"`
	To     string `form:"to" binding:"omitempty,date"`
}

func (s *Server) list(c *gin.Context) ([]incidentdb.Incident, bool) {
	var q listQuery
	if !validation.BindQuery(c, &q) {
		return nil, false
	}
	rows, err := s.queries.ListIncidents(c.Request.Context(), incidentdb.ListFilter(q))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "報告一覧の取得に失敗しました"})
		log.Printf("報告一覧取得エラー: %v", err)
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
		resp := make([]incidentResponse, 0, len(rows))
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
		c.JSON(http.StatusOK, ComputeStats(rows))
	}
}

// incidentInput は報告の登録・修正リクエスト。
type incidentInput struct {
	OccurredAt         string   `json:"occurred_at" binding:"required,datetime=2006-01-02T15:04"`
	Type               string   `json:"incident_type" binding:"required,oneof=accident nearMiss"`
	Location           string   `json:"location" binding:"required,max=200"`
	InvolvedPersons    []string `json:"involved_persons" binding:"dive,required"`
	Description        string   `json:"description" binding:"required"`
	Response           string   `json:"response"`
	PreventiveMeasures string   `json:"preventive_measures"`
}

func encodePersons(ps []string) string {
	if ps == nil {
		ps = []string{}
	}
	b, _ := json.Marshal(ps)
	return string(b)
}

// handleCreate は報告を登録するハンドラ。報告者は操作した利用者。
// 事故の場合は管理者にメールで知らせる。メールの失敗は登録を妨げない。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in incidentInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		name := id.Name
		if name == "" {
			name = id.UserID
		}

		now := database.Timestamp(s.now())
		row := incidentdb.Incident{
			ID:                 uuid.New().String(),
			ReportedBy:         id.UserID,
			ReporterName:       name,
			ReportedAt:         now,
			OccurredAt:         in.OccurredAt,
			Type:               in.Type,
			Location:           in.Location,
			InvolvedPersons:    encodePersons(in.InvolvedPersons),
			Description:        in.Description,
			Response:           in.Response,
			PreventiveMeasures: in.PreventiveMeasures,
			Status:             StatusPending,
			UpdatedBy:          id.UserID,
			UpdatedAt:          now,
		}
		ctx := c.Request.Context()
		if err := s.queries.CreateIncident(ctx, row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "報告の登録に失敗しました"})
			log.Printf("報告登録エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, row.ID, event.AggregateTypeIncident, event.TypeIncidentReported, toData(row))
		if row.Type == TypeAccident && s.alerter != nil {
			if err := s.alerter.AccidentReported(ctx, row); err != nil {
				log.Printf("[Incident] 事故報告のメール送信に失敗 (id=%s): %v", row.ID, err)
			}
		}
		c.JSON(http.StatusCreated, toResponse(row))
	}
}

func (s *Server) load(c *gin.Context) (incidentdb.Incident, bool) {
	row, err := s.queries.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "報告が見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "報告の取得に失敗しました"})
		log.Printf("報告取得エラー: %v", err)
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

// handleUpdate は報告の内容を修正するハンドラ。報告者本人と管理者だけが修正できる。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.load(c)
		if !ok {
			return
		}
		id := middleware.GetIdentity(c)
		if id.Role != middleware.RoleAdmin && current.ReportedBy != id.UserID {
			c.JSON(http.StatusForbidden, gin.H{"error": "この報告を修正する権限がありません"})
			return
		}
		var in incidentInput
		if !validation.BindJSON(c, &in) {
			return
		}

		updated := current
		updated.OccurredAt = in.OccurredAt
		updated.Type = in.Type
		updated.Location = in.Location
		updated.InvolvedPersons = encodePersons(in.InvolvedPersons)
		updated.Description = in.Description
		updated.Response = in.Response
		updated.PreventiveMeasures = in.PreventiveMeasures
		updated.UpdatedBy = id.UserID
		updated.UpdatedAt = database.Timestamp(s.now())

		ctx := c.Request.Context()
		if err := s.queries.UpdateContent(ctx, updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "報告の修正に失敗しました"})
			log.Printf("報告更新エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, updated.ID, event.AggregateTypeIncident, event.TypeIncidentUpdated, toData(updated))
		c.JSON(http.StatusOK, toResponse(updated))
	}
}

// statusInput は対応状況の変更リクエスト。
type statusInput struct {
	Status string `json:"status" binding:"required,oneof=pending in_progress completed"`
}

func (s *Server) handleChangeStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in statusInput
		if !validation.BindJSON(c, &in) {
			return
		}
		current, ok := s.load(c)
		if !ok {
			return
		}
		if err := CheckTransition(current.Status, in.Status); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": current.Status})
			return
		}

		ctx := c.Request.Context()
		userID := middleware.GetUserID(c)
		now := database.Timestamp(s.now())
		changed, err := s.queries.UpdateStatus(ctx, current.ID, current.Status, in.Status, userID, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "対応状況の変更に失敗しました"})
			log.Printf("対応状況変更エラー: %v", err)
			return
		}
		if !changed {
			c.JSON(http.StatusConflict, gin.H{"error": "対応状況は既に変更されています"})
			return
		}

		updated := current
		updated.Status = in.Status
		updated.UpdatedBy = userID
		updated.UpdatedAt = now
		s.emitter.Emit(ctx, updated.ID, event.AggregateTypeIncident, event.TypeIncidentStatusChanged, toData(updated))
		c.JSON(http.StatusOK, toResponse(updated))
	}
}

// handleExportReport は報告書1件をPDFで返すハンドラ。
func (s *Server) handleExportReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.load(c)
		if !ok {
			return
		}
		data, err := ReportPDF(s.docOptions, row, s.now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
			log.Printf("報告書のPDF出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ReportFilename(row)))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

// handleExportList は絞り込んだ報告の一覧をPDFで返すハンドラ。
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
			log.Printf("報告一覧のPDF出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ListFilename(now)))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}
