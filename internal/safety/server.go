package safety

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	safetydb "github.com/nao1215/shiftcare/internal/safety/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// Server は防災・感染症記録サービスのHTTPサーバー。
type Server struct {
	router     *gin.Engine
	port       string
	queries    *safetydb.Queries
	db         *sqlx.DB
	emitter    *event.Emitter
	metrics    *metrics.Registry
	auth       gin.HandlerFunc
	docOptions document.Options
	now        func() time.Time
}

// NewServer は新しい防災・感染症記録サーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, event.NewEmitter(cfg.EventStoreURL), metrics.New("safety"), middleware.JWTAuth(cfg.JWTSecret))
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
		queries: safetydb.New(db),
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
	api.Use(middleware.RequireRole(middleware.RoleAdmin))
	{
		// 一覧のクエリパラメータ: type, from, to, q, sort
		drills := api.Group("/drills")
		{
			drills.GET("", s.handleListDrills())
			drills.POST("", s.handleCreateDrill())
			drills.GET("/:id", s.handleGetDrill())
			drills.GET("/:id/export.pdf", s.handleExportDrill())
		}

		infections := api.Group("/infections")
		{
			infections.GET("", s.handleListInfections())
			infections.POST("", s.handleCreateInfection())
			infections.GET("/:id", s.handleGetInfection())
			infections.GET("/:id/export.pdf", s.handleExportInfection())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "safety"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "safety", "schema_version": version})
	}
}

// listQuery は一覧の共通クエリパラメータ。種別は記録ごとに検証する。
type listQuery struct {
	Type   string `form:"type"`
	From   string `form:"from" binding:"omitempty,date"`
	To     string `form:"to" binding:"omitempty,date"`
	Search string `form:"q" binding:"max=100"`
	Sort   string `form:"sort" binding:"omitempty,oneof=newest oldest"`
}

// bindList はクエリパラメータを読み取る。typeはlabelsに含まれる種別だけを受け付ける。
func bindList(c *gin.Context, labels map[string]string) (safetydb.ListFilter, bool) {
	var q listQuery
	if !validation.BindQuery(c, &q) {
		return safetydb.ListFilter{}, false
	}
	if _, ok := labels[q.Type]; q.Type != "" && !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "種別が不正です"})
		return safetydb.ListFilter{}, false
	}
	return safetydb.ListFilter{
		Type:   q.Type,
		From:   q.From,
		To:     q.To,
		Search: q.Search,
		Oldest: q.Sort == "oldest",
	}, true
}

func displayName(id middleware.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.UserID
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

func writePDF(c *gin.Context, filename string, data []byte, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
		log.Printf("PDF出力エラー (%s): %v", filename, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// drillResponse は防災訓練記録のJSONレスポンス構造。
type drillResponse struct {
	ID                string `json:"id"`
	ConductedBy       string `json:"conducted_by"`
	ConductorName     string `json:"conductor_name"`
	ConductedOn       string `json:"conducted_on"`
	Type              string `json:"drill_type"`
	ParticipantsCount int    `json:"participants_count"`
	Details           string `json:"details"`
	Improvements      string `json:"improvements"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toDrillResponse(d safetydb.Drill) drillResponse {
	return drillResponse{
		ID:                d.ID,
		ConductedBy:       d.ConductedBy,
		ConductorName:     d.ConductorName,
		ConductedOn:       d.ConductedOn,
		Type:              d.Type,
		ParticipantsCount: d.ParticipantsCount,
		Details:           d.Details,
		Improvements:      d.Improvements,
		CreatedAt:         database.RFC3339(d.CreatedAt),
		UpdatedAt:         database.RFC3339(d.UpdatedAt),
	}
}

func (s *Server) handleListDrills() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindList(c, drillLabels)
		if !ok {
			return
		}
		rows, err := s.queries.ListDrills(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "防災訓練記録の取得に失敗しました"})
			log.Printf("防災訓練記録一覧取得エラー: %v", err)
			return
		}
		resp := make([]drillResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toDrillResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// drillInput は防災訓練記録の登録リクエスト。
type drillInput struct {
	ConductedOn       string `json:"conducted_on" binding:"required,date"`
	Type              string `json:"drill_type" binding:"required,oneof=fire earthquake evacuation firefighting other"`
	ParticipantsCount int    `json:"participants_count" binding:"gte=0,lte=10000"`
	Details           string `json:"details" binding:"required"`
	Improvements      string `json:"improvements"`
}

func (s *Server) handleCreateDrill() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in drillInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		now := database.Timestamp(s.now())
		row := safetydb.Drill{
			ID:                uuid.New().String(),
			ConductedBy:       id.UserID,
			ConductorName:     displayName(id),
			ConductedOn:       in.ConductedOn,
			Type:              in.Type,
			ParticipantsCount: in.ParticipantsCount,
			Details:           in.Details,
			Improvements:      in.Improvements,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		ctx := c.Request.Context()
		if err := s.queries.CreateDrill(ctx, row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "防災訓練記録の登録に失敗しました"})
			log.Printf("防災訓練記録登録エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, row.ID, event.AggregateTypeDrill, event.TypeDrillRecorded, event.SafetyRecordData{
			ID:         row.ID,
			Kind:       row.Type,
			Date:       row.ConductedOn,
			RecordedBy: row.ConductedBy,
		})
		c.JSON(http.StatusCreated, toDrillResponse(row))
	}
}

func (s *Server) handleGetDrill() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := s.queries.GetDrill(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFound(c, err, "防災訓練記録")
			return
		}
		c.JSON(http.StatusOK, toDrillResponse(row))
	}
}

func (s *Server) handleExportDrill() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := s.queries.GetDrill(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFound(c, err, "防災訓練記録")
			return
		}
		data, err := DrillPDF(s.docOptions, row, s.now())
		writePDF(c, DrillFilename(row), data, err)
	}
}

// infectionResponse は感染症対応記録のJSONレスポンス構造。
type infectionResponse struct {
	ID               string `json:"id"`
	ReportedBy       string `json:"reported_by"`
	ReporterName     string `json:"reporter_name"`
	OccurredOn       string `json:"occurred_on"`
	Type             string `json:"infection_type"`
	AffectedCount    int    `json:"affected_count"`
	ResponseMeasures string `json:"response_measures"`
	Outcome          string `json:"outcome"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func toInfectionResponse(i safetydb.Infection) infectionResponse {
	return infectionResponse{
		ID:               i.ID,
		ReportedBy:       i.ReportedBy,
		ReporterName:     i.ReporterName,
		OccurredOn:       i.OccurredOn,
		Type:             i.Type,
		AffectedCount:    i.AffectedCount,
		ResponseMeasures: i.ResponseMeasures,
		Outcome:          i.Outcome,
		CreatedAt:        database.RFC3339(i.CreatedAt),
		UpdatedAt:        database.RFC3339(i.UpdatedAt),
	}
}

func (s *Server) handleListInfections() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindList(c, infectionLabels)
		if !ok {
			return
		}
		rows, err := s.queries.ListInfections(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "感染症対応記録の取得に失敗しました"})
			log.Printf("感染症対応記録一覧取得エラー: %v", err)
			return
		}
		resp := make([]infectionResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toInfectionResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// infectionInput は感染症対応記録の登録リクエスト。
type infectionInput struct {
	OccurredOn       string `json:"occurred_on" binding:"required,date"`
	Type             string `json:"infection_type" binding:"required,oneof=influenza covid19 norovirus other"`
	AffectedCount    int    `json:"affected_count" binding:"gte=0,lte=10000"`
	ResponseMeasures string `json:"response_measures" binding:"required"`
	Outcome          string `json:"outcome"`
}

func (s *Server) handleCreateInfection() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in infectionInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		now := database.Timestamp(s.now())
		row := safetydb.Infection{
			ID:               uuid.New().String(),
			ReportedBy:       id.UserID,
			ReporterName:     displayName(id),
			OccurredOn:       in.OccurredOn,
			Type:             in.Type,
			AffectedCount:    in.AffectedCount,
			ResponseMeasures: in.ResponseMeasures,
			Outcome:          in.Outcome,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		ctx := c.Request.Context()
		if err := s.queries.CreateInfection(ctx, row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "感染症対応記録の登録に失敗しました"})
			log.Printf("感染症対応記録登録エラー: %v", err)
			return
		}

		s.emitter.Emit(ctx, row.ID, event.AggregateTypeInfection, event.TypeInfectionRecorded, event.SafetyRecordData{
			ID:         row.ID,
			Kind:       row.Type,
			Date:       row.OccurredOn,
			RecordedBy: row.ReportedBy,
		})
		c.JSON(http.StatusCreated, toInfectionResponse(row))
	}
}

func (s *Server) handleGetInfection() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := s.queries.GetInfection(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFound(c, err, "感染症対応記録")
			return
		}
		c.JSON(http.StatusOK, toInfectionResponse(row))
	}
}

func (s *Server) handleExportInfection() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := s.queries.GetInfection(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFound(c, err, "感染症対応記録")
			return
		}
		data, err := InfectionPDF(s.docOptions, row, s.now())
		writePDF(c, InfectionFilename(row), data, err)
	}
}
