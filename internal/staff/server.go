package staff

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	staffdb "github.com/nao1215/shiftcare/internal/staff/db"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/migration"
	"github.com/nao1215/shiftcare/pkg/spreadsheet"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// maxImportSize は取り込むファイルの最大サイズ。
const maxImportSize = 10 << 20

var (
	// ErrDuplicateEmail はメールアドレスが既に使われている場合のエラー。
	ErrDuplicateEmail = errors.New("このメールアドレスは既に登録されています")
	// ErrInvalidStaff は業務ルールの検証でエラーになった場合のエラー。
	ErrInvalidStaff = errors.New("入力内容に誤りがあります")
)

// Server はスタッフサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はスタッフテーブルへのクエリ。
	queries *staffdb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// emitter はEvent Storeへ変更イベントを送信する。
	emitter *event.Emitter
	// metrics はPrometheusのメトリクス。
	metrics *metrics.Registry
	// auth は /api/v1 に掛ける認証ミドルウェア。
	auth gin.HandlerFunc
	// docOptions はPDF帳票の生成オプション。
	docOptions document.Options
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいスタッフサーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DBPath, migrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg.Port, db, event.NewEmitter(cfg.EventStoreURL), metrics.New("staff"), middleware.JWTAuth(cfg.JWTSecret))
	s.docOptions = document.Options{
		FontPath:     cfg.FontPath,
		LogoPath:     cfg.FacilityLogoPath,
		FacilityName: cfg.FacilityName,
	}
	s.router.Use(gin.Logger())
	s.setupRoutes()
	return s, nil
}

// newServer はルーティング設定前のサーバーを組み立てる。
func newServer(port string, db *sqlx.DB, emitter *event.Emitter, reg *metrics.Registry, auth gin.HandlerFunc) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(reg.Middleware())

	return &Server{
		router:  router,
		port:    port,
		queries: staffdb.New(db),
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

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(s.auth)
	{
		staff := api.Group("/staff")
		{
			// スタッフ一覧（クエリパラメータ: role, active）
			staff.GET("", s.handleList())
			// 勤務体制一覧表の出力
			staff.GET("/export.pdf", s.handleExportPDF())
			staff.GET("/export.xlsx", s.handleExportXLSX())
			// 名簿ファイルの取り込み（管理者のみ）
			staff.POST("/import", middleware.RequireRole(middleware.RoleAdmin), s.handleImport())
			// 入力内容の検証のみ行う
			staff.POST("/validate", s.handleValidate())
			// スタッフ登録（管理者のみ）
			staff.POST("", middleware.RequireRole(middleware.RoleAdmin), s.handleCreate())
			staff.GET("/:id", s.handleGet())
			staff.PUT("/:id", s.handleUpdate())
			staff.DELETE("/:id", s.handleDelete())
			// 資格評価と雇用形態ごとの制約
			staff.GET("/:id/assessment", s.handleAssessment())
		}
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.Version(s.db.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "staff"})
			log.Printf("ヘルスチェックエラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "staff", "schema_version": version})
	}
}

// staffResponse はスタッフのJSONレスポンス構造。
type staffResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           string   `json:"role"`
	Position       string   `json:"position"`
	Department     string   `json:"department"`
	Qualifications []string `json:"qualifications"`
	NightShiftOK   bool     `json:"night_shift_ok"`
	EmploymentType string   `json:"employment_type"`
	WeeklyHours    int64    `json:"weekly_hours"`
	Phone          string   `json:"phone"`
	JoinedDate     string   `json:"joined_date"`
	IsActive       bool     `json:"is_active"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// decodeQualifications はJSON配列で保存した資格を取り出す。壊れている場合は空。
func decodeQualifications(raw string) []string {
	quals := []string{}
	if err := json.Unmarshal([]byte(raw), &quals); err != nil {
		log.Printf("資格データの解析に失敗: %v", err)
		return []string{}
	}
	return quals
}

func toStaffResponse(s staffdb.Staff) staffResponse {
	return staffResponse{
		ID:             s.ID,
		Name:           s.Name,
		Email:          s.Email,
		Role:           s.Role,
		Position:       s.Position,
		Department:     s.Department,
		Qualifications: decodeQualifications(s.Qualifications),
		NightShiftOK:   s.NightShiftOK,
		EmploymentType: s.EmploymentType,
		WeeklyHours:    s.WeeklyHours,
		Phone:          s.Phone,
		JoinedDate:     s.JoinedDate,
		IsActive:       s.IsActive,
		CreatedAt:      database.RFC3339(s.CreatedAt),
		UpdatedAt:      database.RFC3339(s.UpdatedAt),
	}
}

// toRow はスタッフの変更イベントに載せるスナップショットを返す。
func toRow(s staffdb.Staff) *event.StaffRow {
	return &event.StaffRow{
		ID:             s.ID,
		Name:           s.Name,
		Email:          s.Email,
		Role:           s.Role,
		Position:       s.Position,
		EmploymentType: s.EmploymentType,
		IsActive:       s.IsActive,
	}
}

// applyInput は登録内容を行に反映する。
func applyInput(row *staffdb.Staff, in Input) {
	quals, _ := json.Marshal(in.Qualifications)
	row.Name = in.Name
	row.Email = in.Email
	row.Role = in.Role
	row.Position = in.Position
	row.Department = in.Department
	row.Qualifications = string(quals)
	row.NightShiftOK = in.NightShiftOK
	row.EmploymentType = in.EmploymentType
	row.WeeklyHours = 0
	if in.WeeklyHours != nil {
		row.WeeklyHours = int64(*in.WeeklyHours)
	}
	row.Phone = in.Phone
	row.JoinedDate = in.JoinedDate
	row.IsActive = in.IsActive == nil || *in.IsActive
}

// create は業務ルールとメールアドレスの重複を確認してスタッフを登録する。
// 検証結果は登録できなかった場合も返す。
func (s *Server) create(ctx context.Context, in Input) (staffdb.Staff, *validation.Result, error) {
	in.normalize()
	result := ValidateStaff(in)
	if !result.Valid() {
		return staffdb.Staff{}, result, ErrInvalidStaff
	}

	exists, err := s.queries.EmailExists(ctx, in.Email, "")
	if err != nil {
		return staffdb.Staff{}, result, fmt.Errorf("メールアドレスの確認に失敗: %w", err)
	}
	if exists {
		return staffdb.Staff{}, result, ErrDuplicateEmail
	}

	now := database.Timestamp(s.now())
	row := staffdb.Staff{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}
	applyInput(&row, in)
	if err := s.queries.CreateStaff(ctx, row); err != nil {
		if database.IsUniqueViolation(err) {
			return staffdb.Staff{}, result, ErrDuplicateEmail
		}
		return staffdb.Staff{}, result, fmt.Errorf("スタッフの登録に失敗: %w", err)
	}

	event.EmitChange(ctx, s.emitter, row.ID, event.AggregateTypeStaff, event.TypeStaffCreated, nil, toRow(row))
	return row, result, nil
}

// writeError は登録・更新のエラーをレスポンスに変換する。
func writeError(c *gin.Context, err error, result *validation.Result) {
	switch {
	case errors.Is(err, ErrInvalidStaff):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "errors": result.Errors, "warnings": result.Warnings})
	case errors.Is(err, ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ情報の保存に失敗しました"})
		log.Printf("スタッフ保存エラー: %v", err)
	}
}

// handleList はスタッフ一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var f staffdb.ListFilter
		f.Role = c.Query("role")
		if f.Role != "" && f.Role != middleware.RoleAdmin && f.Role != middleware.RoleStaff {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roleはstaffまたはadminで指定してください"})
			return
		}
		if raw := c.Query("active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "activeはtrueまたはfalseで指定してください"})
				return
			}
			f.Active = &active
		}

		rows, err := s.queries.ListStaff(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ一覧の取得に失敗しました"})
			log.Printf("スタッフ一覧取得エラー: %v", err)
			return
		}

		resp := make([]staffResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toStaffResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// loadStaff はパスパラメータのスタッフを取得する。失敗した場合はレスポンスを書き込む。
func (s *Server) loadStaff(c *gin.Context) (staffdb.Staff, bool) {
	row, err := s.queries.GetStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "スタッフが見つかりません"})
			return row, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ情報の取得に失敗しました"})
		log.Printf("スタッフ取得エラー: %v", err)
		return row, false
	}
	return row, true
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadStaff(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toStaffResponse(row))
	}
}

// handleValidate は保存せずに業務ルールの検証結果を返すハンドラ。
func (s *Server) handleValidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in Input
		if !validation.BindJSON(c, &in) {
			return
		}
		in.normalize()
		result := ValidateStaff(in)
		c.JSON(http.StatusOK, gin.H{"valid": result.Valid(), "errors": result.Errors, "warnings": result.Warnings})
	}
}

// handleCreate はスタッフを登録するハンドラ。警告は登録結果と一緒に返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in Input
		if !validation.BindJSON(c, &in) {
			return
		}

		row, result, err := s.create(c.Request.Context(), in)
		if err != nil {
			writeError(c, err, result)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"staff": toStaffResponse(row), "warnings": result.Warnings})
	}
}

// handleUpdate はスタッフ情報を更新するハンドラ。
// 一般スタッフは自分の情報だけを更新でき、権限と在籍状態は変更できない。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.loadStaff(c)
		if !ok {
			return
		}
		id := middleware.GetIdentity(c)
		if !CanEdit(id.Role, id.UserID, current.ID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "このスタッフを編集する権限がありません"})
			return
		}

		var in Input
		if !validation.BindJSON(c, &in) {
			return
		}
		if id.Role != middleware.RoleAdmin {
			in.Role = current.Role
			active := current.IsActive
			in.IsActive = &active
		}
		in.normalize()

		result := ValidateStaff(in)
		if !result.Valid() {
			writeError(c, ErrInvalidStaff, result)
			return
		}

		ctx := c.Request.Context()
		exists, err := s.queries.EmailExists(ctx, in.Email, current.ID)
		if err != nil {
			writeError(c, err, result)
			return
		}
		if exists {
			writeError(c, ErrDuplicateEmail, result)
			return
		}

		updated := current
		applyInput(&updated, in)
		updated.UpdatedAt = database.Timestamp(s.now())
		if err := s.queries.UpdateStaff(ctx, updated); err != nil {
			if database.IsUniqueViolation(err) {
				err = ErrDuplicateEmail
			}
			writeError(c, err, result)
			return
		}

		event.EmitChange(ctx, s.emitter, updated.ID, event.AggregateTypeStaff, event.TypeStaffUpdated, toRow(current), toRow(updated))
		c.JSON(http.StatusOK, gin.H{"staff": toStaffResponse(updated), "warnings": result.Warnings})
	}
}

// handleDelete はスタッフを削除するハンドラ。管理者だけが削除でき、管理者は削除できない。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "スタッフを削除する権限がありません"})
			return
		}
		row, ok := s.loadStaff(c)
		if !ok {
			return
		}
		if !CanDelete(middleware.GetRole(c), row.Role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "管理者は削除できません"})
			return
		}

		if err := s.queries.DeleteStaff(c.Request.Context(), row.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフの削除に失敗しました"})
			log.Printf("スタッフ削除エラー: %v", err)
			return
		}

		event.EmitChange(c.Request.Context(), s.emitter, row.ID, event.AggregateTypeStaff, event.TypeStaffDeleted, toRow(row), nil)
		c.JSON(http.StatusOK, gin.H{"message": "スタッフを削除しました"})
	}
}

func (s *Server) handleAssessment() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, ok := s.loadStaff(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"staff_id":    row.ID,
			"assessment":  AssessQualifications(decodeQualifications(row.Qualifications)),
			"constraints": EmploymentConstraints(row.EmploymentType),
		})
	}
}

// roster は勤務体制一覧表の行を返す。
func (s *Server) roster(ctx context.Context) ([]RosterRow, error) {
	rows, err := s.queries.ListStaff(ctx, staffdb.ListFilter{Role: middleware.RoleStaff})
	if err != nil {
		return nil, err
	}
	return BuildRoster(rows), nil
}

// handleExportPDF は勤務体制一覧表をPDFで返すハンドラ。
func (s *Server) handleExportPDF() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.roster(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ一覧の取得に失敗しました"})
			log.Printf("勤務体制一覧表の取得エラー: %v", err)
			return
		}

		now := s.now()
		data, err := RosterPDF(s.docOptions, rows, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "PDFの出力に失敗しました"})
			log.Printf("勤務体制一覧表のPDF出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, RosterFilename(now, "pdf")))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

// handleExportXLSX は勤務体制一覧表をExcelで返すハンドラ。
func (s *Server) handleExportXLSX() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.roster(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スタッフ一覧の取得に失敗しました"})
			log.Printf("勤務体制一覧表の取得エラー: %v", err)
			return
		}

		data, err := RosterXLSX(rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Excelの出力に失敗しました"})
			log.Printf("勤務体制一覧表のExcel出力エラー: %v", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, RosterFilename(s.now(), "xlsx")))
		c.Data(http.StatusOK, spreadsheet.ContentType, data)
	}
}

// importResult は取り込んだ1行の結果。
type importResult struct {
	Line     int                `json:"line"`
	Name     string             `json:"name"`
	Status   string             `json:"status"`
	ID       string             `json:"id,omitempty"`
	Error    string             `json:"error,omitempty"`
	Errors   []validation.Issue `json:"errors,omitempty"`
	Warnings []validation.Issue `json:"warnings,omitempty"`
}

// handleImport は名簿ファイル（xlsx, xls）からスタッフを一括登録するハンドラ。
// 行ごとに登録し、失敗した行があっても残りの行は登録する。
func (s *Server) handleImport() gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileフィールドにファイルを指定してください"})
			return
		}
		if fh.Size > maxImportSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "ファイルサイズが大きすぎます"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルを開けません"})
			return
		}
		defer f.Close()

		table, err := spreadsheet.ReadRows(fh.Filename, f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rows, err := ParseImport(table)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results := make([]importResult, 0, len(rows))
		created := 0
		for _, r := range rows {
			res := importResult{Line: r.Line, Name: r.Input.Name}
			row, vr, err := s.create(c.Request.Context(), r.Input)
			if vr != nil {
				res.Errors = vr.Errors
				res.Warnings = vr.Warnings
			}
			switch {
			case err == nil:
				res.Status = "created"
				res.ID = row.ID
				created++
			case errors.Is(err, ErrInvalidStaff):
				res.Status = "invalid"
				res.Error = err.Error()
			case errors.Is(err, ErrDuplicateEmail):
				res.Status = "duplicate"
				res.Error = err.Error()
			default:
				res.Status = "error"
				res.Error = "登録に失敗しました"
				log.Printf("スタッフ取り込みエラー (line=%d): %v", r.Line, err)
			}
			results = append(results, res)
		}

		c.JSON(http.StatusOK, gin.H{
			"created": created,
			"failed":  len(rows) - created,
			"results": results,
		})
	}
}
