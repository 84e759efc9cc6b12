package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	eventstoredb "github.com/nao1215/shiftcare/internal/eventstore/db"
	"github.com/nao1215/shiftcare/pkg/changefeed"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

const (
	// maxAppendAttempts はバージョン競合時に追記をやり直す最大回数。
	maxAppendAttempts = 3
	// defaultListLimit は一覧系APIの既定の取得件数。
	defaultListLimit = 500
	// maxListLimit は一覧系APIの最大取得件数。
	maxListLimit = 1000
)

// ErrVersionConflict は同じAggregateへの同時追記でバージョンが確定できなかった場合のエラー。
var ErrVersionConflict = errors.New("イベントのバージョンが競合しました")

// Server はイベントストアサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はイベントテーブルへのクエリ。
	queries *eventstoredb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// publisher は追記したイベントをNATSに発行する。NATS未設定の場合は何もしない。
	publisher *changefeed.Publisher
	// nc はNATS接続。未設定の場合はnil。
	nc *nats.Conn
	// metrics はPrometheusのメトリクス。
	metrics *metrics.Registry
	// appended は追記したイベントの件数。
	appended prometheus.Counter
	// appendMu は採番からコミットまでを直列化する。
	// created_at の順序とコミット順序を一致させ、sinceによる取得で取りこぼしを防ぐ。
	appendMu sync.Mutex
	now      func() time.Time
}

// NewServer は新しいイベントストアサーバーを生成する。
// NATS_URL が設定されていれば、追記したイベントをNATSにも発行する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = changefeed.Connect(cfg.NATSURL, "shiftcare-eventstore")
		if err != nil {
			// NATSが無くてもポーリングで変更を取得できるため起動は続ける
			log.Printf("[EventStore] NATSへの接続に失敗したため発行を無効化します: %v", err)
			nc = nil
		}
	}

	s := newServer(cfg.Port, db, changefeed.NewPublisher(nc), metrics.New("eventstore"))
	s.nc = nc
	s.router.Use(gin.Logger())
	s.setupRoutes()
	return s, nil
}

// newServer はルーティング設定前のサーバーを組み立てる。
func newServer(port string, db *sqlx.DB, publisher *changefeed.Publisher, reg *metrics.Registry) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:    router,
		port:      port,
		queries:   eventstoredb.New(db),
		db:        db,
		publisher: publisher,
		metrics:   reg,
		appended:  reg.Counter("events_appended_total", "追記したイベントの件数").WithLabelValues(),
		now:       time.Now,
	}
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はデータベースとNATSの接続を閉じる。
func (s *Server) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
// イベントストアはサービス間の内部APIのため認証を掛けない。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		events := api.Group("/events")
		{
			// イベントの追記
			events.POST("", s.handleAppendEvent())
			// 全イベントの取得
			events.GET("", s.handleListEvents())
			// AggregateIDによるイベント取得
			events.GET("/aggregate/:aggregate_id", s.handleGetEventsByAggregateID())
			// イベントタイプによるイベント取得
			events.GET("/type/:event_type", s.handleGetEventsByType())
			// 日時指定によるイベント取得（クエリパラメータ: since）
			events.GET("/since", s.handleGetEventsSince())
			// AggregateIDの最新バージョン取得
			events.GET("/aggregate/:aggregate_id/version", s.handleGetLatestVersion())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "eventstore"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "eventstore", "schema_version": version})
	}
}

// toEvent はDB行をイベントに変換する。
func toEvent(row eventstoredb.Event) event.Event {
	createdAt, err := database.ParseTimestamp(row.CreatedAt)
	if err != nil {
		log.Printf("イベント日時の解析に失敗 (id=%s): %v", row.ID, err)
	}
	return event.Event{
		ID:            row.ID,
		AggregateID:   row.AggregateID,
		AggregateType: event.AggregateType(row.AggregateType),
		EventType:     event.Type(row.EventType),
		Data:          json.RawMessage(row.Data),
		Version:       row.Version,
		CreatedAt:     createdAt,
	}
}

func toEvents(rows []eventstoredb.Event) []event.Event {
	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, toEvent(r))
	}
	return events
}

// appendEvent はAggregateの次のバージョンを採番してイベントを追記する。
// 同時追記で一意制約に違反した場合は採番からやり直す。
func (s *Server) appendEvent(ctx context.Context, req event.AppendRequest) (*event.Event, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		ev, err := s.tryAppend(ctx, req)
		if err == nil {
			return ev, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		log.Printf("[EventStore] バージョン競合のため再試行します (aggregate_id=%s, attempt=%d)", req.AggregateID, attempt+1)
	}
	return nil, ErrVersionConflict
}

func (s *Server) tryAppend(ctx context.Context, req event.AppendRequest) (*event.Event, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	latest, err := q.GetLatestVersion(ctx, req.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("最新バージョンの取得に失敗: %w", err)
	}
	createdAt, err := s.nextCreatedAt(ctx, q)
	if err != nil {
		return nil, err
	}

	row := eventstoredb.Event{
		ID:            uuid.New().String(),
		AggregateID:   req.AggregateID,
		AggregateType: req.AggregateType,
		EventType:     req.EventType,
		Data:          string(req.Data),
		Version:       latest + 1,
		CreatedAt:     createdAt,
	}
	if err := q.AppendEvent(ctx, row); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	ev := toEvent(row)
	return &ev, nil
}

// nextCreatedAt は直前のイベントより必ず後になる作成日時を返す。
// 時計が巻き戻ったり同じ値を返したりしても1ナノ秒ずつ進める。
func (s *Server) nextCreatedAt(ctx context.Context, q *eventstoredb.Queries) (string, error) {
	now := s.now().UTC()
	latest, err := q.GetLatestCreatedAt(ctx)
	if err != nil {
		return "", fmt.Errorf("最新の作成日時の取得に失敗: %w", err)
	}
	if latest == "" {
		return database.Timestamp(now), nil
	}
	last, err := database.ParseTimestamp(latest)
	if err != nil {
		return "", fmt.Errorf("最新の作成日時の解析に失敗: %w", err)
	}
	if !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	return database.Timestamp(now), nil
}

// handleAppendEvent はイベントの追記を処理するハンドラを返す。
func (s *Server) handleAppendEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req event.AppendRequest
		if !validation.BindJSON(c, &req) {
			return
		}
		if !json.Valid(req.Data) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dataが正しいJSONではありません"})
			return
		}

		ev, err := s.appendEvent(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "イベントのバージョンが競合しました"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの追記に失敗しました"})
			log.Printf("イベント追記エラー: %v", err)
			return
		}
		s.appended.Inc()

		if err := s.publisher.Publish(ev); err != nil {
			log.Printf("[EventStore] NATSへの発行に失敗 (id=%s): %v", ev.ID, err)
		}

		c.JSON(http.StatusCreated, ev)
	}
}

// listLimit はクエリパラメータ limit を解釈する。
func listLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

// handleListEvents は全イベントを作成日時順に返すハンドラ。
func (s *Server) handleListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := listLimit(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitは1以上の整数で指定してください"})
			return
		}

		rows, err := s.queries.ListEvents(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			log.Printf("イベント一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toEvents(rows))
	}
}

// handleGetEventsByAggregateID はAggregateIDによるイベント取得を処理するハンドラを返す。
func (s *Server) handleGetEventsByAggregateID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.queries.ListEventsByAggregateID(c.Request.Context(), c.Param("aggregate_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			log.Printf("AggregateID別イベント取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toEvents(rows))
	}
}

// handleGetEventsByType はイベントタイプによるイベント取得を処理するハンドラを返す。
func (s *Server) handleGetEventsByType() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.queries.ListEventsByType(c.Request.Context(), c.Param("event_type"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			log.Printf("タイプ別イベント取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toEvents(rows))
	}
}

// handleGetEventsSince は日時指定によるイベント取得を処理するハンドラを返す。
// sinceより厳密に後のイベントを古い順に返す。
func (s *Server) handleGetEventsSince() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("since")
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sinceパラメータが必要です"})
			return
		}
		since, err := database.ParseTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sinceはRFC3339形式で指定してください"})
			return
		}
		limit, ok := listLimit(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitは1以上の整数で指定してください"})
			return
		}

		rows, err := s.queries.ListEventsSince(c.Request.Context(), database.Timestamp(since), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			log.Printf("日時指定イベント取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toEvents(rows))
	}
}

// handleGetLatestVersion はAggregateIDの最新バージョン取得を処理するハンドラを返す。
func (s *Server) handleGetLatestVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		aggregateID := c.Param("aggregate_id")
		version, err := s.queries.GetLatestVersion(c.Request.Context(), aggregateID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "バージョンの取得に失敗しました"})
			log.Printf("最新バージョン取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"aggregate_id": aggregateID, "version": version})
	}
}
