package evaluation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	evaluationdb "github.com/nao1215/shiftcare/internal/evaluation/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// 受け付ける対象年度の範囲。
const (
	minYear = 2000
	maxYear = 2100
)

// Server は自己評価サービスのHTTPサーバー。
type Server struct {
	router     *gin.Engine
	port       string
	queries    *evaluationdb.Queries
	db         *sqlx.DB
	catalogue  *Catalogue
	emitter    *event.Emitter
	metrics    *metrics.Registry
	auth       gin.HandlerFunc
	docOptions document.Options
	now        func() time.Time
}

// NewServer は新しい自己評価サーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	catalogue, err := DefaultCatalogue()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, catalogue, event.NewEmitter(cfg.EventStoreURL), metrics.New("evaluation"), middleware.JWTAuth(cfg.JWTSecret))
	s.docOptions = document.Options{
		FontPath:     cfg.FontPath,
		LogoPath:     cfg.FacilityLogoPath,
		FacilityName: cfg.FacilityName,
	}
	s.router.Use(gin.Logger())
	s.setupRoutes()
	return s, nil
}

func newServer(port string, db *sqlx.DB, catalogue *Catalogue, emitter *event.Emitter, reg *metrics.Registry, auth gin.HandlerFunc) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:    router,
		port:      port,
		queries:   evaluationdb.New(db),
		db:        db,
		catalogue: catalogue,
		emitter:   emitter,
		metrics:   reg,
		auth:      auth,
		now:       time.Now,
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
		evaluations := api.Group("/evaluations")
		{
			evaluations.GET("/questions", s.handleQuestions())
			// 年度ごとの履歴
			evaluations.GET("", s.handleHistory())
			evaluations.GET("/:year", s.handleGet())
			evaluations.PUT("/:year", s.handleSave())
			evaluations.POST("/:year/complete", s.handleComplete())
			evaluations.GET("/:year/summary", s.handleSummary())
			evaluations.GET("/:year/export.pdf", s.handleExport())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "evaluation"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "evaluation", "schema_version": version})
	}
}

func (s *Server) handleQuestions() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"score_descriptions": s.catalogue.ScoreDescriptions,
			"categories":         s.catalogue.Categories(),
			"questions":          s.catalogue.Questions,
		})
	}
}

// yearParam はパスの年度を読み取る。範囲外は400を返す。
func yearParam(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < minYear || year > maxYear {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("年度は%dから%dの数値で指定してください", minYear, maxYear)})
		return 0, false
	}
	return year, true
}

// answerResponse は設問1件の回答のJSONレスポンス構造。
type answerResponse struct {
	QuestionID string `json:"question_id"`
	Number     int    `json:"number"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
}

// evaluationResponse は年度の自己評価のJSONレスポンス構造。保存前の年度はSavedがfalse。
type evaluationResponse struct {
	Year        int              `json:"year"`
	Saved       bool             `json:"saved"`
	IsCompleted bool             `json:"is_completed"`
	CompletedAt string           `json:"completed_at,omitempty"`
	UpdatedBy   string           `json:"updated_by,omitempty"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
	Responses   []answerResponse `json:"responses,omitempty"`
	Summary     Summary          `json:"summary"`
}

func (s *Server) toResponse(e evaluationdb.Evaluation, saved bool, responses []evaluationdb.Response, withAnswers bool) evaluationResponse {
	resp := evaluationResponse{
		Year:        e.Year,
		Saved:       saved,
		IsCompleted: e.IsCompleted,
		UpdatedBy:   e.UpdatedBy,
		Summary:     Summarize(s.catalogue, responses),
	}
	if e.CompletedAt != "" {
		resp.CompletedAt = database.RFC3339(e.CompletedAt)
	}
	if e.UpdatedAt != "" {
		resp.UpdatedAt = database.RFC3339(e.UpdatedAt)
	}
	if withAnswers {
		for _, a := range Answers(s.catalogue, responses) {
			resp.Responses = append(resp.Responses, answerResponse{
				QuestionID: a.Question.ID,
				Number:     a.Question.Number,
				Score:      a.Score,
				Comment:    a.Comment,
			})
		}
	}
	return resp
}

// load は年度の自己評価と回答を取得する。保存前の年度は空の自己評価とfalseを返す。
func (s *Server) load(ctx context.Context, year int) (evaluationdb.Evaluation, []evaluationdb.Response, bool, error) {
	e, err := s.queries.GetEvaluation(ctx, year)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluationdb.Evaluation{Year: year}, nil, false, nil
	}
	if err != nil {
		return e, nil, false, err
	}
	responses, err := s.queries.ListResponses(ctx, year)
	if err != nil {
		return e, nil, false, err
	}
	return e, responses, true, nil
}

func (s *Server) handleHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		evals, err := s.queries.ListEvaluations(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の履歴の取得に失敗しました"})
			log.Printf("自己評価履歴取得エラー: %v", err)
			return
		}
		all, err := s.queries.ListAllResponses(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の履歴の取得に失敗しました"})
			log.Printf("回答一覧取得エラー: %v", err)
			return
		}
		byYear := map[int][]evaluationdb.Response{}
		for _, r := range all {
			byYear[r.Year] = append(byYear[r.Year], r)
		}

		resp := make([]evaluationResponse, 0, len(evals))
		for _, e := range evals {
			resp = append(resp, s.toResponse(e, true, byYear[e.Year], false))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := yearParam(c)
		if !ok {
			return
		}
		e, responses, saved, err := s.load(c.Request.Context(), year)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の取得に失敗しました"})
			log.Printf("自己評価取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, s.toResponse(e, saved, responses, true))
	}
}

func (s *Server) handleSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := yearParam(c)
		if !ok {
			return
		}
		_, responses, _, err := s.load(c.Request.Context(), year)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の取得に失敗しました"})
			log.Printf("自己評価取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, Summarize(s.catalogue, responses))
	}
}

// answerInput は設問1件の回答。scoreの0は未回答。
type answerInput struct {
	QuestionID string `json:"question_id" binding:"required"`
	Score      int    `json:"score" binding:"min=0,max=5"`
	Comment    string `json:"comment" binding:"max=2000"`
}

// saveInput は回答の保存リクエスト。含まれない設問の回答は変更しない。
type saveInput struct {
	Responses []answerInput `json:"responses" binding:"required,dive"`
}

// save は回答を保存する。完了済みの年度はErrCompletedを返す。
func (s *Server) save(ctx context.Context, year int, userID string, answers []answerInput) error {
	now := database.Timestamp(s.now())
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	current, err := q.GetEvaluation(ctx, year)
	switch {
	case err == nil && current.IsCompleted:
		return ErrCompleted
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("自己評価の取得に失敗: %w", err)
	}

	if err := q.UpsertEvaluation(ctx, evaluationdb.Evaluation{
		Year:      year,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedBy: userID,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("自己評価の保存に失敗: %w", err)
	}
	for _, a := range answers {
		if err := q.UpsertResponse(ctx, evaluationdb.Response{
			Year:       year,
			QuestionID: a.QuestionID,
			Score:      a.Score,
			Comment:    a.Comment,
		}); err != nil {
			return fmt.Errorf("回答の保存に失敗 (question_id=%s): %w", a.QuestionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// handleSave は年度の回答を保存するハンドラ。存在しない設問を含む場合は何も保存しない。
func (s *Server) handleSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := yearParam(c)
		if !ok {
			return
		}
		var in saveInput
		if !validation.BindJSON(c, &in) {
			return
		}
		for _, a := range in.Responses {
			if !s.catalogue.Has(a.QuestionID) {
				c.JSON(http.StatusBadRequest, gin.H{"error": ErrUnknownQuestion.Error(), "question_id": a.QuestionID})
				return
			}
		}

		ctx := c.Request.Context()
		if err := s.save(ctx, year, middleware.GetUserID(c), in.Responses); err != nil {
			if errors.Is(err, ErrCompleted) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の保存に失敗しました"})
			log.Printf("自己評価保存エラー: %v", err)
			return
		}

		e, responses, _, err := s.load(ctx, year)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の取得に失敗しました"})
			log.Printf("自己評価取得エラー: %v", err)
			return
		}
		resp := s.toResponse(e, true, responses, true)
		s.emitter.Emit(ctx, strconv.Itoa(year), event.AggregateTypeEvaluation, event.TypeEvaluationSaved, event.EvaluationData{
			Year:     year,
			Answered: resp.Summary.Answered,
			Total:    resp.Summary.Total,
		})
		c.JSON(http.StatusOK, resp)
	}
}

// handleComplete は全設問に回答済みの自己評価を完了にするハンドラ。
func (s *Server) handleComplete() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := yearParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		e, responses, _, err := s.load(ctx, year)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の取得に失敗しました"})
			log.Printf("自己評価取得エラー: %v", err)
			return
		}
		if e.IsCompleted {
			c.JSON(http.StatusConflict, gin.H{"error": ErrCompleted.Error()})
			return
		}
		sum := Summarize(s.catalogue, responses)
		if sum.Answered < sum.Total {
			var missing []int
			for _, a := range Answers(s.catalogue, responses) {
				if a.Score == 0 {
					missing = append(missing, a.Question.Number)
				}
			}
			c.JSON(http.StatusConflict, gin.H{"error": ErrIncomplete.Error(), "unanswered": missing})
			return
		}

		now := database.Timestamp(s.now())
		changed, err := s.queries.Complete(ctx, year, middleware.GetUserID(c), now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の完了に失敗しました"})
			log.Printf("自己評価完了エラー: %v", err)
			return
		}
		if !changed {
			c.JSON(http.StatusConflict, gin.H{"error": ErrCompleted.Error()})
			return
		}

		e.IsCompleted = true
		e.CompletedAt = now
		e.UpdatedBy = middleware.GetUserID(c)
		e.UpdatedAt = now
		s.emitter.Emit(ctx, strconv.Itoa(year), event.AggregateTypeEvaluation, event.TypeEvaluationCompleted, event.EvaluationData{
			Year:     year,
			Answered: sum.Answered,
			Total:    sum.Total,
		})
		c.JSON(http.StatusOK, s.toResponse(e, true, responses, true))
	}
}

func (s *Server) handleExport() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := yearParam(c)
		if !ok {
			return
		}
		_, responses, _, err := s.load(c.Request.Context(), year)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "自己評価の取得に失敗しました"})
			log.Printf("自己評価取得エラー: %v", err)
			return
		}
		data, err := ReportPDF(s.docOptions, s.catalogue, year, responses, s.now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
			log.Printf("自己評価表のPDF出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ReportFilename(year)))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}
