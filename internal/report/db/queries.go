// Package reportdb は日報サービスのSQLクエリを提供する。
package reportdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Report はdaily_reportsテーブルの行。
type Report struct {
	ID          string `db:"id"`
	Date        string `db:"date"`
	StaffID     string `db:"staff_id"`
	StaffName   string `db:"staff_name"`
	ShiftType   string `db:"shift_type"`
	Activities  string `db:"activities"`
	TeamNotes   string `db:"team_notes"`
	UserReports string `db:"user_reports"`
	Status      string `db:"status"`
	ReviewNotes string `db:"review_notes"`
	ReviewedBy  string `db:"reviewed_by"`
	ReviewedAt  string `db:"reviewed_at"`
	SubmittedAt string `db:"submitted_at"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

// ListFilter は日報一覧の絞り込み条件。空の項目は条件にしない。
type ListFilter struct {
	DateFrom  string
	DateTo    string
	StaffID   string
	ShiftType string
	Status    string
}

// Queries は日報サービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

const reportColumns = `id, date, staff_id, staff_name, shift_type, activities, team_notes, user_reports,
	status, review_notes, reviewed_by, reviewed_at, submitted_at, created_at, updated_at`

// ListReports は日報を新しい日付順に返す。
func (q *Queries) ListReports(ctx context.Context, f ListFilter) ([]Report, error) {
	var (
		where []string
		args  []any
	)
	if f.DateFrom != "" {
		where = append(where, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		where = append(where, "date <= ?")
		args = append(args, f.DateTo)
	}
	if f.StaffID != "" {
		where = append(where, "staff_id = ?")
		args = append(args, f.StaffID)
	}
	if f.ShiftType != "" {
		where = append(where, "shift_type = ?")
		args = append(args, f.ShiftType)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + reportColumns + ` FROM daily_reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, staff_name, id`

	var rows []Report
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetReport は日報を1件取得する。
func (q *Queries) GetReport(ctx context.Context, id string) (Report, error) {
	var r Report
	err := sqlx.GetContext(ctx, q.db, &r, `SELECT `+reportColumns+` FROM daily_reports WHERE id = ?`, id)
	return r, err
}

// CreateReport は日報を1件登録する。同じスタッフの同じ日付の日報がある場合は一意制約違反になる。
func (q *Queries) CreateReport(ctx context.Context, r Report) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO daily_reports (`+reportColumns+`)
		VALUES (:id, :date, :staff_id, :staff_name, :shift_type, :activities, :team_notes, :user_reports,
			:status, :review_notes, :reviewed_by, :reviewed_at, :submitted_at, :created_at, :updated_at)`, r)
	return err
}

// UpdateContent は日報の本文（活動内容・申し送り・利用者ごとの記録）を更新する。
func (q *Queries) UpdateContent(ctx context.Context, r Report) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		UPDATE daily_reports SET
			shift_type = :shift_type, activities = :activities, team_notes = :team_notes,
			user_reports = :user_reports, updated_at = :updated_at
		WHERE id = :id`, r)
	return err
}

// UpdateStatus は日報のステータスをfromからtoに変更する。
// 他の操作で既にステータスが変わっていた場合はfalseを返す。
func (q *Queries) UpdateStatus(ctx context.Context, r Report, from string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE daily_reports SET status = ?, review_notes = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		r.Status, r.ReviewNotes, r.ReviewedBy, r.ReviewedAt, r.UpdatedAt, r.ID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteReport は日報を削除する。
func (q *Queries) DeleteReport(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM daily_reports WHERE id = ?`, id)
	return err
}
