package shiftdb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Area はassignment_areasテーブルの行。
type Area struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	RequiredEarly int    `db:"required_early"`
	RequiredDay   int    `db:"required_day"`
	RequiredLate  int    `db:"required_late"`
	RequiredNight int    `db:"required_night"`
	MaxCapacity   int    `db:"max_capacity"`
	Priority      int    `db:"priority"`
	Color         string `db:"color"`
}

// Assignment はassignmentsテーブルの行。
type Assignment struct {
	ID        string `db:"id"`
	StaffID   string `db:"staff_id"`
	StaffName string `db:"staff_name"`
	AreaID    string `db:"area_id"`
	Date      string `db:"date"`
	ShiftType string `db:"shift_type"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
	IsLeader  bool   `db:"is_leader"`
	Notes     string `db:"notes"`
	CreatedBy string `db:"created_by"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

const areaColumns = `id, name, description, required_early, required_day, required_late, required_night,
	max_capacity, priority, color`

const assignmentColumns = `id, staff_id, staff_name, area_id, date, shift_type, start_time, end_time,
	is_leader, notes, created_by, created_at, updated_at`

// ListAreas は配置エリアを優先度順に返す。
func (q *Queries) ListAreas(ctx context.Context) ([]Area, error) {
	var areas []Area
	err := sqlx.SelectContext(ctx, q.db, &areas, `SELECT `+areaColumns+` FROM assignment_areas ORDER BY priority, id`)
	return areas, err
}

// GetArea は配置エリアを1件取得する。
func (q *Queries) GetArea(ctx context.Context, id string) (Area, error) {
	var a Area
	err := sqlx.GetContext(ctx, q.db, &a, `SELECT `+areaColumns+` FROM assignment_areas WHERE id = ?`, id)
	return a, err
}

// ListAssignmentsOnDate はその日の配置をエリア・シフト種別・登録順に返す。
func (q *Queries) ListAssignmentsOnDate(ctx context.Context, date string) ([]Assignment, error) {
	var rows []Assignment
	err := sqlx.SelectContext(ctx, q.db, &rows, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE date = ?
		ORDER BY area_id, shift_type, created_at, id`, date)
	return rows, err
}

// CountAssigned はエリア・日付・シフト種別ごとの配置人数を返す。
func (q *Queries) CountAssigned(ctx context.Context, areaID, date, shiftType string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.db, &n,
		`SELECT COUNT(*) FROM assignments WHERE area_id = ? AND date = ? AND shift_type = ?`, areaID, date, shiftType)
	return n, err
}

// GetAssignment は配置を1件取得する。
func (q *Queries) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var a Assignment
	err := sqlx.GetContext(ctx, q.db, &a, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	return a, err
}

// CreateAssignment は配置を1件登録する。
// 同じスタッフが同じ日・同じシフト種別に配置済みの場合は一意制約違反になる。
func (q *Queries) CreateAssignment(ctx context.Context, a Assignment) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (:id, :staff_id, :staff_name, :area_id, :date, :shift_type, :start_time, :end_time,
			:is_leader, :notes, :created_by, :created_at, :updated_at)`, a)
	return err
}

// MoveAssignment は配置先のエリアを変更する。
func (q *Queries) MoveAssignment(ctx context.Context, id, areaID, now string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE assignments SET area_id = ?, updated_at = ? WHERE id = ?`, areaID, now, id)
	return err
}

// DeleteAssignment は配置を1件削除する。
func (q *Queries) DeleteAssignment(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	return err
}
