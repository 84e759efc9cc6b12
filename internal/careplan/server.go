package careplan

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	careplandb "github.com/nao1215/shiftcare/internal/careplan/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// Server は個別支援計画サービスのHTTPサーバー。
type Server struct {
	router     *gin.Engine
	port       string
	queries    *careplandb.Queries
	db         *sqlx.DB
	emitter    *event.Emitter
	metrics    *metrics.Registry
	auth       gin.HandlerFunc
	docOptions document.Options
	now        func() time.Time
}

// NewServer は新しい個別支援計画サーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, event.NewEmitter(cfg.EventStoreURL), metrics.New("careplan"), middleware.JWTAuth(cfg.JWTSecret))
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
		queries: careplandb.New(db),
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
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api := s.router.Group("/api/v1")
	api.Use(s.auth)
	{
		// 一覧のクエリパラメータ: service_user_id, status, q
		records := api.Group("/monitoring-records")
		{
			records.GET("", s.handleListMonitoring())
			records.POST("", s.handleCreateMonitoring())
			records.GET("/:id", s.handleGetMonitoring())
			records.PUT("/:id", s.handleUpdateMonitoring())
			records.PUT("/:id/status", s.handleMonitoringStatus())
			records.PUT("/:id/review", admin, s.handleReviewMonitoring())
			records.GET("/:id/export.pdf", s.handleExportMonitoring())
		}

		plans := api.Group("/support-plans")
		{
			plans.GET("", s.handleListPlans())
			plans.POST("", s.handleCreatePlan())
			// モニタリング記録の内容を引き継いだ下書きを作る
			plans.POST("/from-monitoring/:id", s.handleDraftPlanFromMonitoring())
			plans.GET("/:id", s.handleGetPlan())
			plans.PUT("/:id", s.handleUpdatePlan())
			plans.PUT("/:id/status", s.handlePlanStatus())
			plans.PUT("/:id/approve", admin, s.handleApprovePlan())
			plans.GET("/:id/export.pdf", s.handleExportPlan())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "careplan"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "careplan", "schema_version": version})
	}
}

type listQuery struct {
	ServiceUserID string `form:"service_user_id" binding:"max=50"`
	Status        string `form:"status" binding:"omitempty,oneof=draft completed submitted"`
	Search        string `form:"q" binding:"max=100"`
}

func bindList(c *gin.Context) (careplandb.ListFilter, bool) {
	var q listQuery
	if !validation.BindQuery(c, &q) {
		return careplandb.ListFilter{}, false
	}
	return careplandb.ListFilter{ServiceUserID: q.ServiceUserID, Status: q.Status, Search: q.Search}, true
}

// statusInput は状態変更のリクエスト。
type statusInput struct {
	Status string `json:"status" binding:"required,oneof=draft completed submitted"`
}

func displayName(id middleware.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.UserID
}

// canModify は作成者本人か管理者かを返す。
func canModify(c *gin.Context, createdBy string) bool {
	return middleware.IsAdmin(c) || middleware.GetUserID(c) == createdBy
}

// notFound は取得エラーをレスポンスに変換する。
func notFound(c *gin.Context, err error, what string) {
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + "が見つかりません"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": what + "の取得に失敗しました"})
	log.Printf("%s取得エラー: %v", what, err)
}

// checkPeriod は対象期間の前後関係を検証する。不正な場合は400を書き込む。
func checkPeriod(c *gin.Context, p Period) bool {
	if !p.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "対象期間の開始日は終了日以前にしてください"})
		return false
	}
	return true
}

// checkTransition は状態変更の可否を検証する。不可の場合は409を書き込む。
func checkTransition(c *gin.Context, from, to string) bool {
	if !CanTransition(from, to) {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("%sから%sには変更できません", StatusLabel(from), StatusLabel(to)),
		})
		return false
	}
	return true
}

// decodeContent は保存済みの本文JSONを読み取る。壊れている場合は空の本文として扱う。
func decodeContent[T any](id, raw string) T {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Printf("本文の読み取りに失敗 (%s): %v", id, err)
	}
	return v
}

func writePDF(c *gin.Context, filename string, data []byte, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
		log.Printf("PDF出力エラー (%s): %v", filename, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
