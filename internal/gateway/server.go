package gateway

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	gatewaydb "github.com/nao1215/shiftcare/internal/gateway/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はusersテーブルへのクエリ実行オブジェクト。
	queries *gatewaydb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// upstreams は転送先の内部サービス。
	upstreams []upstream
	// client は内部サービスへの転送に使うHTTPクライアント。
	// 通知ストリームを中継するためタイムアウトは設定しない。
	client  *http.Client
	metrics *metrics.Registry
	proxied *proxyCounter
	now     func() time.Time
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, cfg.JWTSecret, upstreamsFromConfig(cfg), metrics.New("gateway"))
	s.router.Use(gin.Logger())
	s.router.Use(middleware.CORS(middleware.SplitOrigins(cfg.FrontendURL)))
	s.setupRoutes()
	return s, nil
}

func newServer(port string, db *sqlx.DB, jwtSecret string, upstreams []upstream, reg *metrics.Registry) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:    router,
		port:      port,
		queries:   gatewaydb.New(db),
		db:        db,
		jwtSecret: jwtSecret,
		upstreams: upstreams,
		client:    &http.Client{},
		metrics:   reg,
		proxied:   newProxyCounter(reg),
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

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証不要
	auth := s.router.Group("/auth")
	{
		auth.POST("/demo-login", s.handleDemoLogin())
		// 開発用。管理者のデモログインと同じ
		auth.POST("/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		api.GET("/me", s.handleGetCurrentUser())

		for _, up := range s.upstreams {
			for _, prefix := range up.prefixes {
				h := s.handleProxy(up)
				api.Any(prefix, h)
				api.Any(prefix+"/*path", h)
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "gateway"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway", "schema_version": version})
	}
}

// demoUsers はデモログインで発行する利用者。
var demoUsers = map[string]middleware.Identity{
	middleware.RoleAdmin: {UserID: "demo-admin", Email: "admin@shiftcare.example", Name: "管理者 田中", Role: middleware.RoleAdmin},
	middleware.RoleStaff: {UserID: "3", Email: "yamada@shiftcare.example", Name: "山田花子", Role: middleware.RoleStaff},
}

// DemoIdentity はロールに対応するデモ利用者を返す。
func DemoIdentity(role string) (middleware.Identity, bool) {
	id, ok := demoUsers[role]
	return id, ok
}

type demoLoginRequest struct {
	Role string `json:"role" binding:"required,oneof=admin staff"`
}

// loginResponse はトークン発行のJSONレスポンス構造。
type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// userResponse は利用者情報のJSONレスポンス構造。
type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

func (s *Server) handleDemoLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in demoLoginRequest
		if !validation.BindJSON(c, &in) {
			return
		}
		id, _ := DemoIdentity(in.Role)
		s.login(c, id)
	}
}

func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := DemoIdentity(middleware.RoleAdmin)
		s.login(c, id)
	}
}

// login は利用者を記録し、JWTトークンを発行する。
func (s *Server) login(c *gin.Context, id middleware.Identity) {
	now := database.Timestamp(s.now())
	user := gatewaydb.User{
		ID:          id.UserID,
		Name:        id.Name,
		Email:       id.Email,
		Role:        id.Role,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := s.queries.UpsertUser(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの登録に失敗しました"})
		log.Printf("ユーザー登録エラー: %v", err)
		return
	}

	token, err := middleware.GenerateJWT(s.jwtSecret, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
		log.Printf("JWT生成エラー: %v", err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token: token,
		User:  toUserResponse(user),
	})
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		user, err := s.queries.GetUser(c.Request.Context(), userID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

func toUserResponse(u gatewaydb.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		LastLoginAt: database.RFC3339(u.LastLoginAt),
	}
}
