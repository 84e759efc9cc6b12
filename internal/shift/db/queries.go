// Package shiftdb はシフトサービスのSQLクエリを提供する。
package shiftdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Shift はshiftsテーブルの行。
type Shift struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	StaffName   string `db:"staff_name"`
	Date        string `db:"date"`
	ShiftType   string `db:"shift_type"`
	StartTime   string `db:"start_time"`
	EndTime     string `db:"end_time"`
	IsConfirmed bool   `db:"is_confirmed"`
	TargetMonth string `db:"target_month"`
	GeneratedAt string `db:"generated_at"`
	CreatedBy   string `db:"created_by"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

// Request はshift_requestsテーブルの行。
type Request struct {
	ID             string `db:"id"`
	StaffID        string `db:"staff_id"`
	StaffName      string `db:"staff_name"`
	TargetMonth    string `db:"target_month"`
	RequestedDates string `db:"requested_dates"`
	Reason         string `db:"reason"`
	Priority       string `db:"priority"`
	Status         string `db:"status"`
	ReviewedBy     string `db:"reviewed_by"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

// ShiftFilter はシフト一覧の絞り込み条件。空の項目は条件にしない。
type ShiftFilter struct {
	// Month は勤務日の年月（YYYY-MM）。
	Month string
	// UserID は担当スタッフ。
	UserID string
	// TargetMonth は生成シフトの対象月。
	TargetMonth string
	// GeneratedOnly がtrueの場合は生成シフトだけを返す。
	GeneratedOnly bool
}

// RequestFilter は休日希望一覧の絞り込み条件。
type RequestFilter struct {
	TargetMonth string
	StaffID     string
	Status      string
}

// Queries はシフトサービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。dbには*sqlx.DBか*sqlx.Txを渡す。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクション内で実行するQueriesを返す。
func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{db: tx}
}

const shiftColumns = `id, user_id, staff_name, date, shift_type, start_time, end_time, is_confirmed,
	target_month, generated_at, created_by, created_at, updated_at`

// ListShifts はシフトを勤務日・開始時刻の順に返す。
func (q *Queries) ListShifts(ctx context.Context, f ShiftFilter) ([]Shift, error) {
	var (
		where []string
		args  []any
	)
	if f.Month != "" {
		where = append(where, "substr(date, 1, 7) = ?")
		args = append(args, f.Month)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.TargetMonth != "" {
		where = append(where, "target_month = ?")
		args = append(args, f.TargetMonth)
	}
	if f.GeneratedOnly {
		where = append(where, "target_month <> ''")
	}

	query := `SELECT ` + shiftColumns + ` FROM shifts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, start_time, staff_name, id`

	var rows []Shift
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// ListShiftsOnDate はスタッフのその日のシフトを返す。重複チェックに使う。
func (q *Queries) ListShiftsOnDate(ctx context.Context, userID, date string) ([]Shift, error) {
	var rows []Shift
	err := sqlx.SelectContext(ctx, q.db, &rows,
		`SELECT `+shiftColumns+` FROM shifts WHERE user_id = ? AND date = ? ORDER BY start_time, id`, userID, date)
	return rows, err
}

// GetShift はシフトを1件取得する。
func (q *Queries) GetShift(ctx context.Context, id string) (Shift, error) {
	var s Shift
	err := sqlx.GetContext(ctx, q.db, &s, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id)
	return s, err
}

// CreateShift はシフトを1件登録する。
func (q *Queries) CreateShift(ctx context.Context, s Shift) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES (:id, :user_id, :staff_name, :date, :shift_type, :start_time, :end_time, :is_confirmed,
			:target_month, :generated_at, :created_by, :created_at, :updated_at)`, s)
	return err
}

// UpdateShift はシフトの内容を更新する。
func (q *Queries) UpdateShift(ctx context.Context, s Shift) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		UPDATE shifts SET
			user_id = :user_id, staff_name = :staff_name, date = :date, shift_type = :shift_type,
			start_time = :start_time, end_time = :end_time, is_confirmed = :is_confirmed,
			updated_at = :updated_at
		WHERE id = :id`, s)
	return err
}

// DeleteShift はシフトを1件削除する。
func (q *Queries) DeleteShift(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = ?`, id)
	return err
}

// DeleteGenerated は対象月の生成シフトを削除し、削除件数を返す。
// monthが空の場合は全ての生成シフトを削除する。
func (q *Queries) DeleteGenerated(ctx context.Context, month string) (int64, error) {
	query := `DELETE FROM shifts WHERE target_month <> ''`
	var args []any
	if month != "" {
		query = `DELETE FROM shifts WHERE target_month = ?`
		args = append(args, month)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const requestColumns = `id, staff_id, staff_name, target_month, requested_dates, reason, priority, status,
	reviewed_by, created_at, updated_at`

// ListRequests は休日希望を新しい順に返す。
func (q *Queries) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	var (
		where []string
		args  []any
	)
	if f.TargetMonth != "" {
		where = append(where, "target_month = ?")
		args = append(args, f.TargetMonth)
	}
	if f.StaffID != "" {
		where = append(where, "staff_id = ?")
		args = append(args, f.StaffID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + requestColumns + ` FROM shift_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var rows []Request
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetRequest は休日希望を1件取得する。
func (q *Queries) GetRequest(ctx context.Context, id string) (Request, error) {
	var r Request
	err := sqlx.GetContext(ctx, q.db, &r, `SELECT `+requestColumns+` FROM shift_requests WHERE id = ?`, id)
	return r, err
}

// CreateRequest は休日希望を1件登録する。
func (q *Queries) CreateRequest(ctx context.Context, r Request) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO shift_requests (`+requestColumns+`)
		VALUES (:id, :staff_id, :staff_name, :target_month, :requested_dates, :reason, :priority, :status,
			:reviewed_by, :created_at, :updated_at)`, r)
	return err
}

// UpdateRequestStatus は休日希望の状態を、現在の状態がfromの場合だけ変更する。
// 変更できた場合はtrueを返す。
func (q *Queries) UpdateRequestStatus(ctx context.Context, id, from, to, reviewedBy, now string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE shift_requests SET status = ?, reviewed_by = ?, updated_at = ?
		WHERE id = ? AND status = ?`, to, reviewedBy, now, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteRequest は休日希望を1件削除する。
func (q *Queries) DeleteRequest(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM shift_requests WHERE id = ?`, id)
	return err
}
