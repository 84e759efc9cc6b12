package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	notificationdb "github.com/nao1215/shiftcare/internal/notification/db"
	"github.com/nao1215/shiftcare/pkg/changefeed"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/httpclient"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

const (
	// defaultListLimit は通知一覧の既定の取得件数。
	defaultListLimit = 10
	// maxListLimit は通知一覧の最大取得件数。
	maxListLimit = 100
	// streamHeartbeat はSSE接続を維持するためのpingの間隔。
	streamHeartbeat = 30 * time.Second
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries は通知テーブルへのクエリ。
	queries *notificationdb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// emitter はEvent Storeへイベントを送信する。
	emitter *event.Emitter
	// hub はSSE接続中の利用者に新しい通知を配る。
	hub *Hub
	// fanout は変更イベントを通知に展開する。
	fanout *Fanout
	// poller はEvent Storeのポーリングによる変更ストリームの購読。
	// NATS購読中も間隔を空けて動かし、取りこぼしたイベントを拾い直す。
	poller *Poller
	// nc はNATS接続。未設定の場合はnil。
	nc *nats.Conn
	// metrics はPrometheusのメトリクス。
	metrics *metrics.Registry
	// auth は /api/v1 に掛ける認証ミドルウェア。
	auth gin.HandlerFunc
	// cancel は変更ストリームの購読を止める。
	cancel context.CancelFunc
}

// NewServer は新しい通知サーバーを生成し、変更ストリームの購読を開始する。
// NATS_URL が設定されていればNATSを購読し、そうでなければEvent Storeをポーリングする。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	staff := httpclient.New(cfg.StaffURL,
		httpclient.WithTokenFunc(middleware.ServiceTokenFunc(cfg.JWTSecret, "notification")))

	s := newServer(cfg.Port, db,
		event.NewEmitter(cfg.EventStoreURL),
		NewStaffDirectory(staff, DefaultDirectoryTTL),
		metrics.New("notification"),
		middleware.JWTAuth(cfg.JWTSecret),
	)
	s.router.Use(gin.Logger())
	s.setupRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.startFeed(ctx, cfg)
	return s, nil
}

// newServer はルーティング設定前のサーバーを組み立てる。
func newServer(port string, db *sqlx.DB, emitter *event.Emitter, directory Directory, reg *metrics.Registry, auth gin.HandlerFunc) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	queries := notificationdb.New(db)
	hub := NewHub()
	return &Server{
		router:  router,
		port:    port,
		queries: queries,
		db:      db,
		emitter: emitter,
		hub:     hub,
		fanout:  NewFanout(db, directory, hub, reg),
		metrics: reg,
		auth:    auth,
	}
}

// startFeed は変更ストリームの購読を開始する。
func (s *Server) startFeed(ctx context.Context, cfg *config.Config) {
	interval := DefaultPollInterval
	if cfg.NATSURL != "" {
		nc, err := changefeed.Connect(cfg.NATSURL, "shiftcare-notification")
		if err == nil {
			if _, err = changefeed.Subscribe(ctx, nc, s.fanout.Handle); err == nil {
				s.nc = nc
				// NATSで処理できなかったイベントはポーリングで拾い直す。通知は重複しない
				interval = ReconcileInterval
			} else {
				nc.Close()
			}
		}
		if s.nc == nil {
			log.Printf("[Notification] NATSを購読できないためポーリングに切り替えます: %v", err)
		}
	}

	s.poller = NewPoller(s.queries, httpclient.New(cfg.EventStoreURL), s.fanout.Handle, interval)
	s.poller.Start(ctx)
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close は変更ストリームの購読を止め、接続を閉じる。
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(s.auth)
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得（クエリパラメータ: limit）
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 未読件数取得
			notifications.GET("/unread/count", s.handleCountUnread())
			// 新しい通知のSSE配信
			notifications.GET("/stream", s.handleStream())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
			// 通知を1件削除する
			notifications.DELETE("/:id", s.handleDelete())
			// 全通知を削除する
			notifications.DELETE("", s.handleDeleteAll())
		}

		// 通知送信（内部API - 他サービスやCLIから呼び出される）
		internal := api.Group("/internal")
		internal.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			internal.POST("/send", s.handleSend())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "notification"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification", "schema_version": version})
	}
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Type は通知の種類（new_shift, shift_update, request_approved, request_rejected, info）。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n notificationdb.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: database.RFC3339(n.CreatedAt),
	}
}

// toNotificationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []notificationdb.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// requireUserID は認証済みユーザーのIDを返す。取得できない場合は401を書き込む。
func requireUserID(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// handleList は認証済みユーザーの通知を新しい順に返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitは1以上の整数で指定してください"})
				return
			}
			limit = min(n, maxListLimit)
		}

		notifications, err := s.queries.ListNotificationsByUserID(c.Request.Context(), userID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		notifications, err := s.queries.ListUnreadNotifications(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

func (s *Server) handleCountUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		count, err := s.queries.CountUnread(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			log.Printf("未読件数取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// loadOwned は通知を取得し、認証済みユーザーの通知であることを確認する。
// 失敗した場合はレスポンスを書き込んでfalseを返す。
func (s *Server) loadOwned(c *gin.Context, userID string) (notificationdb.Notification, bool) {
	n, err := s.queries.GetNotificationByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return n, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
		log.Printf("通知取得エラー: %v", err)
		return n, false
	}
	if n.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
		return n, false
	}
	return n, true
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		n, ok := s.loadOwned(c, userID)
		if !ok {
			return
		}

		if err := s.queries.MarkAsRead(c.Request.Context(), n.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		updated, err := s.queries.MarkAllAsRead(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました", "updated": updated})
	}
}

func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		n, ok := s.loadOwned(c, userID)
		if !ok {
			return
		}

		if err := s.queries.DeleteNotification(c.Request.Context(), n.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			log.Printf("通知削除エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を削除しました"})
	}
}

// handleDeleteAll は認証済みユーザーの通知を全て削除するハンドラ。
func (s *Server) handleDeleteAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		deleted, err := s.queries.DeleteAllNotifications(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			log.Printf("全通知削除エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "全通知を削除しました", "deleted": deleted})
	}
}

// handleStream は認証済みユーザー宛ての新しい通知をServer-Sent Eventsで配信するハンドラ。
// 接続直後に connected イベントを送り、以降は notification イベントと定期的な ping を送る。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		ch, unsubscribe := s.hub.Subscribe(userID)
		defer unsubscribe()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("connected", gin.H{"user_id": userID})
		c.Writer.Flush()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		ctx := c.Request.Context()
		c.Stream(func(io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case n := <-ch:
				c.SSEvent("notification", n)
				return true
			case <-heartbeat.C:
				c.SSEvent("ping", gin.H{"time": time.Now().UTC().Format(time.RFC3339)})
				return true
			}
		})
	}
}

// sendRequest は通知送信リクエストのJSON構造。
type sendRequest struct {
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id" binding:"required"`
	// Type は通知の種類。省略時は info。
	Type string `json:"type" binding:"omitempty,oneof=new_shift shift_update request_approved request_rejected info"`
	// Title は通知のタイトル。
	Title string `json:"title" binding:"required"`
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required"`
}

// handleSend は通知を作成しNotificationSentイベントを発行するハンドラ。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if !validation.BindJSON(c, &req) {
			return
		}
		if req.Type == "" {
			req.Type = TypeInfo
		}

		row := notificationdb.Notification{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			Type:      req.Type,
			Title:     req.Title,
			Message:   req.Message,
			CreatedAt: database.Now(),
		}
		if err := s.queries.CreateNotification(c.Request.Context(), row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			log.Printf("通知作成エラー: %v", err)
			return
		}
		if _, err := s.queries.PruneNotifications(c.Request.Context(), req.UserID, retentionPerUser); err != nil {
			log.Printf("古い通知の削除エラー: %v", err)
		}
		s.hub.Publish(req.UserID, toNotificationResponse(row))

		s.emitter.Emit(c.Request.Context(), row.ID, event.AggregateTypeNotification, event.TypeNotificationSent, event.NotificationSentData{
			UserID:  req.UserID,
			Type:    req.Type,
			Title:   req.Title,
			Message: req.Message,
		})

		c.JSON(http.StatusCreated, gin.H{
			"id":      row.ID,
			"message": "通知を送信しました",
		})
	}
}
