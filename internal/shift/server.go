package shift

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

	shiftdb "github.com/nao1215/shiftcare/internal/shift/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/httpclient"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/spreadsheet"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// Server はシフトサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はシフト・休日希望テーブルへのクエリ。
	queries *shiftdb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// emitter はEvent Storeへ変更イベントを送信する。
	emitter *event.Emitter
	// directory はスタッフサービスからスタッフ情報を引く。
	directory Directory
	// metrics はPrometheusのメトリクス。
	metrics *metrics.Registry
	// auth は /api/v1 に掛ける認証ミドルウェア。
	auth gin.HandlerFunc
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいシフトサーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	staff := httpclient.New(cfg.StaffURL,
		httpclient.WithTokenFunc(middleware.ServiceTokenFunc(cfg.JWTSecret, "shift")))

	s := newServer(cfg.Port, db,
		event.NewEmitter(cfg.EventStoreURL),
		NewStaffDirectory(staff, DefaultDirectoryTTL),
		metrics.New("shift"),
		middleware.JWTAuth(cfg.JWTSecret),
	)
	s.router.Use(gin.Logger())
	s.setupRoutes()
	return s, nil
}

// newServer はルーティング設定前のサーバーを組み立てる。
func newServer(port string, db *sqlx.DB, emitter *event.Emitter, directory Directory, reg *metrics.Registry, auth gin.HandlerFunc) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:    router,
		port:      port,
		queries:   shiftdb.New(db),
		db:        db,
		emitter:   emitter,
		directory: directory,
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

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api := s.router.Group("/api/v1")
	api.Use(s.auth)
	{
		shifts := api.Group("/shifts")
		{
			// シフト一覧（クエリパラメータ: month, user_id）
			shifts.GET("", s.handleList())
			shifts.POST("", s.handleCreate())
			// 保存せずに検証結果だけを返す
			shifts.POST("/validate", s.handleValidate())
			// 生成シフトの集計（クエリパラメータ: month）
			shifts.GET("/stats", s.handleStats())
			shifts.GET("/staff-counts", s.handleStaffCounts())

			// 月次の生成シフト
			shifts.GET("/generated", s.handleListGenerated())
			shifts.DELETE("/generated", admin, s.handleDeleteGenerated(false))
			shifts.PUT("/generated/:month", admin, s.handleReplaceGenerated())
			shifts.DELETE("/generated/:month", admin, s.handleDeleteGenerated(true))
			shifts.GET("/generated/:month/export.xlsx", s.handleExportGenerated())
			shifts.POST("/generated/:month/pattern", admin, s.handleApplyPattern())

			shifts.GET("/:id", s.handleGet())
			shifts.PUT("/:id", s.handleUpdate())
			shifts.DELETE("/:id", s.handleDelete())
		}

		requests := api.Group("/shift-requests")
		{
			// 休日希望一覧（クエリパラメータ: month, status, staff_id）
			requests.GET("", s.handleListRequests())
			requests.POST("", s.handleCreateRequest())
			requests.GET("/:id", s.handleGetRequest())
			requests.PUT("/:id/approve", admin, s.handleReviewRequest(RequestApproved))
			requests.PUT("/:id/reject", admin, s.handleReviewRequest(RequestRejected))
			requests.DELETE("/:id", s.handleDeleteRequest())
		}

		assignments := api.Group("/assignments")
		{
			assignments.GET("/areas", s.handleListAreas())
			// エリア配置一覧（クエリパラメータ: date）
			assignments.GET("", s.handleListAssignments())
			assignments.GET("/summary", s.handleAssignmentSummary())
			// クエリパラメータ: area_id, shift_type, count
			assignments.GET("/validate", s.handleValidateStaffing())
			assignments.POST("", admin, s.handleCreateAssignment())
			assignments.PUT("/:id/area", admin, s.handleMoveAssignment())
			assignments.DELETE("/:id", admin, s.handleDeleteAssignment())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "shift"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "shift", "schema_version": version})
	}
}

// shiftResponse はシフトのJSONレスポンス構造。
type shiftResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	StaffName   string `json:"staff_name"`
	Date        string `json:"date"`
	ShiftType   string `json:"shift_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsConfirmed bool   `json:"is_confirmed"`
	TargetMonth string `json:"target_month,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toShiftResponse(s shiftdb.Shift) shiftResponse {
	r := shiftResponse{
		ID:          s.ID,
		UserID:      s.UserID,
		StaffName:   s.StaffName,
		Date:        s.Date,
		ShiftType:   s.ShiftType,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		IsConfirmed: s.IsConfirmed,
		TargetMonth: s.TargetMonth,
		CreatedAt:   database.RFC3339(s.CreatedAt),
		UpdatedAt:   database.RFC3339(s.UpdatedAt),
	}
	if s.GeneratedAt != "" {
		r.GeneratedAt = database.RFC3339(s.GeneratedAt)
	}
	return r
}

func toShiftResponses(rows []shiftdb.Shift) []shiftResponse {
	resp := make([]shiftResponse, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, toShiftResponse(r))
	}
	return resp
}

// toRow はシフトの変更イベントに載せるスナップショットを返す。
func toRow(s shiftdb.Shift) *event.ShiftRow {
	return &event.ShiftRow{
		ID:          s.ID,
		UserID:      s.UserID,
		StaffName:   s.StaffName,
		Date:        s.Date,
		ShiftType:   s.ShiftType,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		IsConfirmed: s.IsConfirmed,
		TargetMonth: s.TargetMonth,
	}
}

// shiftInput はシフト登録・更新のリクエスト。
type shiftInput struct {
	// UserID は担当スタッフ。空の場合は操作した利用者。
	UserID    string `json:"user_id"`
	Date      string `json:"date" binding:"required,date"`
	ShiftType string `json:"shift_type" binding:"required,oneof=early day late night off"`
	// StartTime, EndTime が両方空の場合はシフト種別の標準時刻を使う。
	StartTime   string `json:"start_time" binding:"omitempty,hhmm"`
	EndTime     string `json:"end_time" binding:"omitempty,hhmm"`
	IsConfirmed bool   `json:"is_confirmed"`
}

// applyDefaultTimes は時刻が未指定の場合にシフト種別の標準時刻を補う。
func applyDefaultTimes(shiftType, start, end string) (string, string) {
	if start != "" || end != "" {
		return start, end
	}
	if ds, de, ok := DefaultTimes(shiftType); ok {
		return ds, de
	}
	return "", ""
}

// validMonth はYYYY-MM形式の年月かどうかを返す。
func validMonth(month string) bool {
	_, err := time.Parse("2006-01", month)
	return err == nil
}

// monthQuery はmonthクエリを読み取る。形式が不正な場合は400を書き込んでfalseを返す。
func monthQuery(c *gin.Context) (string, bool) {
	month := c.Query("month")
	if month != "" && !validMonth(month) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "monthはYYYY-MM形式で指定してください"})
		return "", false
	}
	return month, true
}

// monthParam はパスパラメータの対象月を読み取る。
func monthParam(c *gin.Context) (string, bool) {
	month := c.Param("month")
	if !validMonth(month) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "対象月はYYYY-MM形式で指定してください"})
		return "", false
	}
	return month, true
}

// check はスタッフ情報とその日の既存シフトを引いてシフトを検証する。
func (s *Server) check(ctx context.Context, cand Candidate) (*StaffInfo, *validation.Result, error) {
	staff, err := s.directory.Lookup(ctx, cand.UserID)
	if err != nil {
		return nil, nil, err
	}
	existing, err := s.queries.ListShiftsOnDate(ctx, cand.UserID, cand.Date)
	if err != nil {
		return nil, nil, fmt.Errorf("既存シフトの取得に失敗: %w", err)
	}
	return staff, ValidateShift(staff, cand, existing), nil
}

// writeCheckError は検証の前提となる情報を取得できなかった場合のレスポンスを書き込む。
func writeCheckError(c *gin.Context, err error) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "シフトの検証に必要な情報を取得できませんでした"})
	log.Printf("シフト検証エラー: %v", err)
}

// handleList はシフト一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, ok := monthQuery(c)
		if !ok {
			return
		}
		rows, err := s.queries.ListShifts(c.Request.Context(), shiftdb.ShiftFilter{
			Month:  month,
			UserID: c.Query("user_id"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "シフト一覧の取得に失敗しました"})
			log.Printf("シフト一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toShiftResponses(rows))
	}
}

// loadShift はパスパラメータのシフトを取得する。失敗した場合はレスポンスを書き込む。
func (s *Server) loadShift(c *gin.Context) (shiftdb.Shift, bool) {
	row, err := s.queries.GetShift(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "シフトが見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "シフトの取得に失敗しました"})
		log.Printf("シフト取得エラー: %v", err)
		return row, false
	}
	return row, true
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadShift(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toShiftResponse(row))
	}
}

// candidate は入力と利用者から検証対象のシフトを組み立てる。
// 一般スタッフは自分以外のシフトを扱えないため、falseを返す。
func candidate(id middleware.Identity, in shiftInput) (Candidate, bool) {
	if in.UserID == "" {
		in.UserID = id.UserID
	}
	if id.Role != middleware.RoleAdmin && in.UserID != id.UserID {
		return Candidate{}, false
	}
	start, end := applyDefaultTimes(in.ShiftType, in.StartTime, in.EndTime)
	return Candidate{
		UserID:    in.UserID,
		Date:      in.Date,
		ShiftType: in.ShiftType,
		StartTime: start,
		EndTime:   end,
	}, true
}

// handleValidate は保存せずにシフトの検証結果を返すハンドラ。
func (s *Server) handleValidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in shiftInput
		if !validation.BindJSON(c, &in) {
			return
		}
		cand, ok := candidate(middleware.GetIdentity(c), in)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "他のスタッフのシフトは扱えません"})
			return
		}
		cand.ExcludeID = c.Query("exclude_id")

		_, result, err := s.check(c.Request.Context(), cand)
		if err != nil {
			writeCheckError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": result.Valid(), "errors": result.Errors, "warnings": result.Warnings})
	}
}

// handleCreate はシフトを登録するハンドラ。
// 管理者は任意のスタッフ、一般スタッフは自分の未確定シフトだけを登録できる。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in shiftInput
		if !validation.BindJSON(c, &in) {
			return
		}
		id := middleware.GetIdentity(c)
		cand, ok := candidate(id, in)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "他のスタッフのシフトは登録できません"})
			return
		}

		ctx := c.Request.Context()
		staff, result, err := s.check(ctx, cand)
		if err != nil {
			writeCheckError(c, err)
			return
		}
		if !result.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "シフトを登録できません", "errors": result.Errors, "warnings": result.Warnings})
			return
		}

		now := database.Timestamp(s.now())
		row := shiftdb.Shift{
			ID:          uuid.New().String(),
			UserID:      cand.UserID,
			StaffName:   staff.Name,
			Date:        cand.Date,
			ShiftType:   cand.ShiftType,
			StartTime:   cand.StartTime,
			EndTime:     cand.EndTime,
			IsConfirmed: in.IsConfirmed && id.Role == middleware.RoleAdmin,
			CreatedBy:   id.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.queries.CreateShift(ctx, row); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "シフトの登録に失敗しました"})
			log.Printf("シフト登録エラー: %v", err)
			return
		}

		event.EmitChange(ctx, s.emitter, row.ID, event.AggregateTypeShift, event.TypeShiftCreated, nil, toRow(row))
		c.JSON(http.StatusCreated, gin.H{"shift": toShiftResponse(row), "warnings": result.Warnings})
	}
}

// handleUpdate はシフトを更新するハンドラ。
// 一般スタッフは確定前の自分のシフトだけを更新でき、担当者と確定状態は変更できない。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.loadShift(c)
		if !ok {
			return
		}
		id := middleware.GetIdentity(c)
		if !CanEdit(id.Role, id.UserID, current) {
			c.JSON(http.StatusForbidden, gin.H{"error": "このシフトを編集する権限がありません"})
			return
		}

		var in shiftInput
		if !validation.BindJSON(c, &in) {
			return
		}
		if id.Role != middleware.RoleAdmin || in.UserID == "" {
			in.UserID = current.UserID
		}
		if id.Role != middleware.RoleAdmin {
			in.IsConfirmed = current.IsConfirmed
		}
		cand, _ := candidate(middleware.Identity{UserID: in.UserID, Role: id.Role}, in)
		cand.ExcludeID = current.ID

		ctx := c.Request.Context()
		staff, result, err := s.check(ctx, cand)
		if err != nil {
			writeCheckError(c, err)
			return
		}
		if !result.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "シフトを更新できません", "errors": result.Errors, "warnings": result.Warnings})
			return
		}

		updated := current
		updated.UserID = cand.UserID
		updated.StaffName = staff.Name
		updated.Date = cand.Date
		updated.ShiftType = cand.ShiftType
		updated.StartTime = cand.StartTime
		updated.EndTime = cand.EndTime
		updated.IsConfirmed = in.IsConfirmed
		updated.UpdatedAt = database.Timestamp(s.now())
		if err := s.queries.UpdateShift(ctx, updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "シフトの更新に失敗しました"})
			log.Printf("シフト更新エラー: %v", err)
			return
		}

		event.EmitChange(ctx, s.emitter, updated.ID, event.AggregateTypeShift, event.TypeShiftUpdated, toRow(current), toRow(updated))
		c.JSON(http.StatusOK, gin.H{"shift": toShiftResponse(updated), "warnings": result.Warnings})
	}
}

// handleDelete はシフトを削除するハンドラ。削除は管理者のみ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CanDelete(middleware.GetRole(c)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "シフトを削除する権限がありません"})
			return
		}
		row, ok := s.loadShift(c)
		if !ok {
			return
		}
		if err := s.queries.DeleteShift(c.Request.Context(), row.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "シフトの削除に失敗しました"})
			log.Printf("シフト削除エラー: %v", err)
			return
		}

		event.EmitChange(c.Request.Context(), s.emitter, row.ID, event.AggregateTypeShift, event.TypeShiftDeleted, toRow(row), nil)
		c.JSON(http.StatusOK, gin.H{"message": "シフトを削除しました"})
	}
}

// generatedInput は生成シフト1件分のリクエスト。
type generatedInput struct {
	UserID      string `json:"user_id" binding:"required"`
	StaffName   string `json:"staff_name"`
	Date        string `json:"date" binding:"required,date"`
	ShiftType   string `json:"shift_type" binding:"required,oneof=early day late night off"`
	StartTime   string `json:"start_time" binding:"omitempty,hhmm"`
	EndTime     string `json:"end_time" binding:"omitempty,hhmm"`
	IsConfirmed *bool  `json:"is_confirmed"`
}

// replaceRequest は月次の生成シフトを置き換えるリクエスト。
type replaceRequest struct {
	Shifts []generatedInput `json:"shifts" binding:"dive"`
}

// replaceGenerated は対象月の生成シフトをrowsで置き換え、置き換え前の行を返す。
// monthが空の場合は全ての生成シフトを削除する（rowsは空であること）。
func (s *Server) replaceGenerated(ctx context.Context, month string, rows []shiftdb.Shift) ([]shiftdb.Shift, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	old, err := q.ListShifts(ctx, shiftdb.ShiftFilter{TargetMonth: month, GeneratedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("既存の生成シフトの取得に失敗: %w", err)
	}
	if _, err := q.DeleteGenerated(ctx, month); err != nil {
		return nil, fmt.Errorf("既存の生成シフトの削除に失敗: %w", err)
	}
	for _, r := range rows {
		if err := q.CreateShift(ctx, r); err != nil {
			return nil, fmt.Errorf("生成シフトの保存に失敗 (date=%s, user_id=%s): %w", r.Date, r.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return old, nil
}

// emitReplaced は生成シフトの置き換えを行ごとの変更イベントとして送信する。
func (s *Server) emitReplaced(ctx context.Context, month, userID string, old, rows []shiftdb.Shift) {
	for _, r := range old {
		event.EmitChange(ctx, s.emitter, r.ID, event.AggregateTypeShift, event.TypeShiftDeleted, toRow(r), nil)
	}
	for _, r := range rows {
		event.EmitChange(ctx, s.emitter, r.ID, event.AggregateTypeShift, event.TypeShiftCreated, nil, toRow(r))
	}
	aggregateID := "generated"
	if month != "" {
		aggregateID = "generated:" + month
	}
	s.emitter.Emit(ctx, aggregateID, event.AggregateTypeShift, event.TypeGeneratedShiftsReplaced, event.GeneratedShiftsReplacedData{
		TargetMonth: month,
		Count:       len(rows),
		ReplacedBy:  userID,
	})
}

// handleReplaceGenerated は対象月の生成シフトをまとめて置き換えるハンドラ。
// 一部でも保存できなければ何も変更しない。
func (s *Server) handleReplaceGenerated() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, ok := monthParam(c)
		if !ok {
			return
		}
		var req replaceRequest
		if !validation.BindJSON(c, &req) {
			return
		}

		userID := middleware.GetUserID(c)
		now := database.Timestamp(s.now())
		rows := make([]shiftdb.Shift, 0, len(req.Shifts))
		for i, in := range req.Shifts {
			if in.Date[:7] != month {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%d件目の日付 %s は対象月 %s ではありません", i+1, in.Date, month)})
				return
			}
			start, end := applyDefaultTimes(in.ShiftType, in.StartTime, in.EndTime)
			rows = append(rows, shiftdb.Shift{
				ID:          uuid.New().String(),
				UserID:      in.UserID,
				StaffName:   in.StaffName,
				Date:        in.Date,
				ShiftType:   in.ShiftType,
				StartTime:   start,
				EndTime:     end,
				IsConfirmed: in.IsConfirmed == nil || *in.IsConfirmed,
				TargetMonth: month,
				GeneratedAt: now,
				CreatedBy:   userID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}

		ctx := c.Request.Context()
		old, err := s.replaceGenerated(ctx, month, rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成シフトの保存に失敗しました"})
			log.Printf("生成シフト保存エラー: %v", err)
			return
		}
		log.Printf("[Shift] %sの生成シフトを置き換えました: %d件 → %d件", month, len(old), len(rows))

		s.emitReplaced(ctx, month, userID, old, rows)
		c.JSON(http.StatusOK, gin.H{
			"target_month": month,
			"count":        len(rows),
			"replaced":     len(old),
			"shifts":       toShiftResponses(rows),
		})
	}
}

// handleDeleteGenerated は生成シフトを削除するハンドラ。
// byMonthがtrueの場合はパスの対象月だけ、falseの場合は全ての生成シフトを削除する。
func (s *Server) handleDeleteGenerated(byMonth bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		month := ""
		if byMonth {
			var ok bool
			if month, ok = monthParam(c); !ok {
				return
			}
		}

		ctx := c.Request.Context()
		old, err := s.replaceGenerated(ctx, month, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成シフトの削除に失敗しました"})
			log.Printf("生成シフト削除エラー: %v", err)
			return
		}

		s.emitReplaced(ctx, month, middleware.GetUserID(c), old, nil)
		c.JSON(http.StatusOK, gin.H{"deleted": len(old)})
	}
}

// handleListGenerated は生成シフトを返すハンドラ。monthが無い場合は全ての月。
func (s *Server) handleListGenerated() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, ok := monthQuery(c)
		if !ok {
			return
		}
		rows, err := s.queries.ListShifts(c.Request.Context(), shiftdb.ShiftFilter{TargetMonth: month, GeneratedOnly: true})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成シフトの取得に失敗しました"})
			log.Printf("生成シフト取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toShiftResponses(rows))
	}
}

// generated はmonthクエリの生成シフトを返す。失敗した場合はレスポンスを書き込む。
func (s *Server) generated(c *gin.Context) ([]shiftdb.Shift, bool) {
	month, ok := monthQuery(c)
	if !ok {
		return nil, false
	}
	rows, err := s.queries.ListShifts(c.Request.Context(), shiftdb.ShiftFilter{TargetMonth: month, GeneratedOnly: true})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成シフトの取得に失敗しました"})
		log.Printf("生成シフト取得エラー: %v", err)
		return nil, false
	}
	return rows, true
}

func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.generated(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, ComputeStats(rows))
	}
}

func (s *Server) handleStaffCounts() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.generated(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, StaffCounts(rows))
	}
}

// handleExportGenerated は対象月の生成シフトをExcelで返すハンドラ。
func (s *Server) handleExportGenerated() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, ok := monthParam(c)
		if !ok {
			return
		}
		rows, err := s.queries.ListShifts(c.Request.Context(), shiftdb.ShiftFilter{TargetMonth: month, GeneratedOnly: true})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成シフトの取得に失敗しました"})
			log.Printf("生成シフト取得エラー: %v", err)
			return
		}

		data, err := MonthXLSX(month, rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Excelの出力に失敗しました"})
			log.Printf("生成シフトのExcel出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ExportFilename(month)))
		c.Data(http.StatusOK, spreadsheet.ContentType, data)
	}
}

// patternRequest は繰り返しルールで生成シフトを追加するリクエスト。
type patternRequest struct {
	// RRule はRFC 5545のRRULE（例: FREQ=WEEKLY;BYDAY=MO,WE,FR）。
	RRule       string `json:"rrule" binding:"required"`
	UserID      string `json:"user_id" binding:"required"`
	ShiftType   string `json:"shift_type" binding:"required,oneof=early day late night off"`
	StartTime   string `json:"start_time" binding:"omitempty,hhmm"`
	EndTime     string `json:"end_time" binding:"omitempty,hhmm"`
	IsConfirmed bool   `json:"is_confirmed"`
}

// skippedDate は繰り返しルールで追加できなかった日。
type skippedDate struct {
	Date   string             `json:"date"`
	Errors []validation.Issue `json:"errors"`
}

// handleApplyPattern は繰り返しルールを対象月の日付に展開して生成シフトを追加するハンドラ。
// 検証でエラーになる日（重複など）は追加せずに結果に含める。
func (s *Server) handleApplyPattern() gin.HandlerFunc {
	return func(c *gin.Context) {
		month, ok := monthParam(c)
		if !ok {
			return
		}
		var req patternRequest
		if !validation.BindJSON(c, &req) {
			return
		}
		dates, err := ExpandPattern(req.RRule, month)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		staff, err := s.directory.Lookup(ctx, req.UserID)
		if err != nil {
			writeCheckError(c, err)
			return
		}
		if staff == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "スタッフが見つかりません"})
			return
		}

		start, end := applyDefaultTimes(req.ShiftType, req.StartTime, req.EndTime)
		userID := middleware.GetUserID(c)
		var (
			created  []shiftdb.Shift
			skipped  = []skippedDate{}
			warnings = []validation.Issue{}
		)
		for _, date := range dates {
			cand := Candidate{UserID: req.UserID, Date: date, ShiftType: req.ShiftType, StartTime: start, EndTime: end}
			existing, err := s.queries.ListShiftsOnDate(ctx, req.UserID, date)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "既存シフトの取得に失敗しました"})
				log.Printf("既存シフト取得エラー: %v", err)
				return
			}
			result := ValidateShift(staff, cand, existing)
			if !result.Valid() {
				skipped = append(skipped, skippedDate{Date: date, Errors: result.Errors})
				continue
			}
			warnings = append(warnings, result.Warnings...)

			now := database.Timestamp(s.now())
			row := shiftdb.Shift{
				ID:          uuid.New().String(),
				UserID:      req.UserID,
				StaffName:   staff.Name,
				Date:        date,
				ShiftType:   req.ShiftType,
				StartTime:   start,
				EndTime:     end,
				IsConfirmed: req.IsConfirmed,
				TargetMonth: month,
				GeneratedAt: now,
				CreatedBy:   userID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.queries.CreateShift(ctx, row); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "生成シフトの保存に失敗しました"})
				log.Printf("生成シフト保存エラー: %v", err)
				return
			}
			created = append(created, row)
			event.EmitChange(ctx, s.emitter, row.ID, event.AggregateTypeShift, event.TypeShiftCreated, nil, toRow(row))
		}

		c.JSON(http.StatusOK, gin.H{
			"target_month": month,
			"created":      toShiftResponses(created),
			"skipped":      skipped,
			"warnings":     warnings,
		})
	}
}
