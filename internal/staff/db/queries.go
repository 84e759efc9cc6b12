// Package staffdb はスタッフサービスのSQLクエリを提供する。
package staffdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Staff はstaffテーブルの行。
type Staff struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	Email          string `db:"email"`
	Role           string `db:"role"`
	Position       string `db:"position"`
	Department     string `db:"department"`
	Qualifications string `db:"qualifications"`
	NightShiftOK   bool   `db:"night_shift_ok"`
	EmploymentType string `db:"employment_type"`
	WeeklyHours    int64  `db:"weekly_hours"`
	Phone          string `db:"phone"`
	JoinedDate     string `db:"joined_date"`
	IsActive       bool   `db:"is_active"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

// ListFilter はスタッフ一覧の絞り込み条件。空の項目は条件にしない。
type ListFilter struct {
	Role   string
	Active *bool
}

// Queries はスタッフサービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

const staffColumns = `id, name, email, role, position, department, qualifications, night_shift_ok,
	employment_type, weekly_hours, phone, joined_date, is_active, created_at, updated_at`

// ListStaff はスタッフを管理者・氏名の順に返す。
func (q *Queries) ListStaff(ctx context.Context, f ListFilter) ([]Staff, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.Active)
	}

	query := `SELECT ` + staffColumns + ` FROM staff`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE role WHEN 'admin' THEN 0 ELSE 1 END, name, id`

	var rows []Staff
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetStaff はスタッフを1件取得する。
func (q *Queries) GetStaff(ctx context.Context, id string) (Staff, error) {
	var s Staff
	err := sqlx.GetContext(ctx, q.db, &s, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, id)
	return s, err
}

// EmailExists はメールアドレスが他のスタッフに使われているかを返す。
// 大文字小文字は区別しない。excludeIDのスタッフは対象外。
func (q *Queries) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q.db, &n,
		`SELECT COUNT(*) FROM staff WHERE email = ? COLLATE NOCASE AND id != ?`, email, excludeID)
	return n > 0, err
}

// CreateStaff はスタッフを1件登録する。
func (q *Queries) CreateStaff(ctx context.Context, s Staff) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO staff (`+staffColumns+`)
		VALUES (:id, :name, :email, :role, :position, :department, :qualifications, :night_shift_ok,
			:employment_type, :weekly_hours, :phone, :joined_date, :is_active, :created_at, :updated_at)`, s)
	return err
}

// UpdateStaff はスタッフ情報を更新する。
func (q *Queries) UpdateStaff(ctx context.Context, s Staff) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		UPDATE staff SET
			name = :name, email = :email, role = :role, position = :position, department = :department,
			qualifications = :qualifications, night_shift_ok = :night_shift_ok,
			employment_type = :employment_type, weekly_hours = :weekly_hours, phone = :phone,
			joined_date = :joined_date, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, s)
	return err
}

// DeleteStaff はスタッフを削除する。
func (q *Queries) DeleteStaff(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM staff WHERE id = ?`, id)
	return err
}
