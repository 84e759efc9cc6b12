// Package safetydb は防災・感染症記録サービスのSQLクエリを提供する。
package safetydb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Drill はdrillsテーブルの行。
type Drill struct {
	ID                string `db:"id"`
	ConductedBy       string `db:"conducted_by"`
	ConductorName     string `db:"conductor_name"`
	ConductedOn       string `db:"conducted_on"`
	Type              string `db:"drill_type"`
	ParticipantsCount int    `db:"participants_count"`
	Details           string `db:"details"`
	Improvements      string `db:"improvements"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

// Infection はinfectionsテーブルの行。
type Infection struct {
	ID               string `db:"id"`
	ReportedBy       string `db:"reported_by"`
	ReporterName     string `db:"reporter_name"`
	OccurredOn       string `db:"occurred_on"`
	Type             string `db:"infection_type"`
	AffectedCount    int    `db:"affected_count"`
	ResponseMeasures string `db:"response_measures"`
	Outcome          string `db:"outcome"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
}

// ListFilter は一覧の絞り込み条件。From, Toは実施日・発生日（両端を含む）。
type ListFilter struct {
	Type   string
	From   string
	To     string
	Search string
	// Oldest がtrueの場合は日付の古い順に並べる。
	Oldest bool
}

// Queries は防災・感染症記録サービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

// listQuery は一覧のSELECT文を組み立てる。
// dateColはFrom/Toと並び順に使う列、textColsは検索対象の列。
func listQuery(table, columns, typeCol, dateCol string, textCols []string, f ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, typeCol+" = ?")
		args = append(args, f.Type)
	}
	if f.From != "" {
		where = append(where, dateCol+" >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, dateCol+" <= ?")
		args = append(args, f.To)
	}
	if f.Search != "" {
		var or []string
		for _, col := range textCols {
			or = append(or, "instr(lower("+col+"), lower(?)) > 0")
			args = append(args, f.Search)
		}
		where = append(where, "("+strings.Join(or, " OR ")+")")
	}

	query := `SELECT ` + columns + ` FROM ` + table
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	order := "DESC"
	if f.Oldest {
		order = "ASC"
	}
	query += ` ORDER BY ` + dateCol + ` ` + order + `, created_at ` + order + `, id`
	return query, args
}

const drillColumns = `id, conducted_by, conductor_name, conducted_on, drill_type, participants_count,
	details, improvements, created_at, updated_at`

// ListDrills は防災訓練記録を実施日の新しい順（Oldestなら古い順）に返す。
func (q *Queries) ListDrills(ctx context.Context, f ListFilter) ([]Drill, error) {
	query, args := listQuery("drills", drillColumns, "drill_type", "conducted_on", []string{"details", "improvements"}, f)
	var rows []Drill
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetDrill は防災訓練記録を1件取得する。
func (q *Queries) GetDrill(ctx context.Context, id string) (Drill, error) {
	var d Drill
	err := sqlx.GetContext(ctx, q.db, &d, `SELECT `+drillColumns+` FROM drills WHERE id = ?`, id)
	return d, err
}

// CreateDrill は防災訓練記録を1件登録する。
func (q *Queries) CreateDrill(ctx context.Context, d Drill) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO drills (`+drillColumns+`)
		VALUES (:id, :conducted_by, :conductor_name, :conducted_on, :drill_type, :participants_count,
			:details, :improvements, :created_at, :updated_at)`, d)
	return err
}

const infectionColumns = `id, reported_by, reporter_name, occurred_on, infection_type, affected_count,
	response_measures, outcome, created_at, updated_at`

// ListInfections は感染症対応記録を発生日の新しい順（Oldestなら古い順）に返す。
func (q *Queries) ListInfections(ctx context.Context, f ListFilter) ([]Infection, error) {
	query, args := listQuery("infections", infectionColumns, "infection_type", "occurred_on", []string{"response_measures", "outcome"}, f)
	var rows []Infection
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetInfection は感染症対応記録を1件取得する。
func (q *Queries) GetInfection(ctx context.Context, id string) (Infection, error) {
	var i Infection
	err := sqlx.GetContext(ctx, q.db, &i, `SELECT `+infectionColumns+` FROM infections WHERE id = ?`, id)
	return i, err
}

// CreateInfection は感染症対応記録を1件登録する。
func (q *Queries) CreateInfection(ctx context.Context, i Infection) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO infections (`+infectionColumns+`)
		VALUES (:id, :reported_by, :reporter_name, :occurred_on, :infection_type, :affected_count,
			:response_measures, :outcome, :created_at, :updated_at)`, i)
	return err
}
