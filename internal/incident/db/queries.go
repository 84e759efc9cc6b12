// Package incidentdb は事故報告サービスのSQLクエリを提供する。
package incidentdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Incident はincidentsテーブルの行。
type Incident struct {
	ID                 string `db:"id"`
	ReportedBy         string `db:"reported_by"`
	ReporterName       string `db:"reporter_name"`
	ReportedAt         string `db:"reported_at"`
	OccurredAt         string `db:"occurred_at"`
	Type               string `db:"incident_type"`
	Location           string `db:"location"`
	InvolvedPersons    string `db:"involved_persons"`
	Description        string `db:"description"`
	Response           string `db:"response"`
	PreventiveMeasures string `db:"preventive_measures"`
	Status             string `db:"status"`
	UpdatedBy          string `db:"updated_by"`
	UpdatedAt          string `db:"updated_at"`
}

// ListFilter は一覧の絞り込み条件。From, Toは発生日（YYYY-MM-DD、両端を含む）。
type ListFilter struct {
	Type   string
	Status string
	From   string
	To     string
}

// Queries は事故報告サービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

const incidentColumns = `id, reported_by, reporter_name, reported_at, occurred_at, incident_type, location,
	involved_persons, description, response, preventive_measures, status, updated_by, updated_at`

// ListIncidents は報告を発生日時の新しい順に返す。
func (q *Queries) ListIncidents(ctx context.Context, f ListFilter) ([]Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "incident_type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != "" {
		where = append(where, "substr(occurred_at, 1, 10) >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "substr(occurred_at, 1, 10) <= ?")
		args = append(args, f.To)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, id`

	var rows []Incident
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetIncident は報告を1件取得する。
func (q *Queries) GetIncident(ctx context.Context, id string) (Incident, error) {
	var i Incident
	err := sqlx.GetContext(ctx, q.db, &i, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	return i, err
}

// CreateIncident は報告を1件登録する。
func (q *Queries) CreateIncident(ctx context.Context, i Incident) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES (:id, :reported_by, :reporter_name, :reported_at, :occurred_at, :incident_type, :location,
			:involved_persons, :description, :response, :preventive_measures, :status, :updated_by, :updated_at)`, i)
	return err
}

// UpdateContent は報告の内容を更新する。対応状況は変更しない。
func (q *Queries) UpdateContent(ctx context.Context, i Incident) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		UPDATE incidents SET
			occurred_at = :occurred_at, incident_type = :incident_type, location = :location,
			involved_persons = :involved_persons, description = :description, response = :response,
			preventive_measures = :preventive_measures, updated_by = :updated_by, updated_at = :updated_at
		WHERE id = :id`, i)
	return err
}

// UpdateStatus は対応状況をfromからtoに変更する。既に変わっていた場合はfalseを返す。
func (q *Queries) UpdateStatus(ctx context.Context, id, from, to, updatedBy, updatedAt string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE incidents SET status = ?, updated_by = ?, updated_at = ?
		WHERE id = ? AND status = ?`, to, updatedBy, updatedAt, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
