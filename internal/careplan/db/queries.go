// Package careplandb は個別支援計画サービスのSQLクエリを提供する。
package careplandb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// MonitoringRecord はmonitoring_recordsテーブルの行。Contentは本文のJSON。
type MonitoringRecord struct {
	ID              string `db:"id"`
	ServiceUserID   string `db:"service_user_id"`
	ServiceUserName string `db:"service_user_name"`
	PeriodStart     string `db:"period_start"`
	PeriodEnd       string `db:"period_end"`
	Content         string `db:"content"`
	Status          string `db:"status"`
	CreatedBy       string `db:"created_by"`
	CreatorName     string `db:"creator_name"`
	SubmittedAt     string `db:"submitted_at"`
	ReviewedBy      string `db:"reviewed_by"`
	ReviewedAt      string `db:"reviewed_at"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

// SupportPlan はsupport_plansテーブルの行。Contentは本文のJSON。
type SupportPlan struct {
	ID                 string `db:"id"`
	ServiceUserID      string `db:"service_user_id"`
	ServiceUserName    string `db:"service_user_name"`
	MonitoringRecordID string `db:"monitoring_record_id"`
	PeriodStart        string `db:"period_start"`
	PeriodEnd          string `db:"period_end"`
	Content            string `db:"content"`
	Status             string `db:"status"`
	CreatedBy          string `db:"created_by"`
	CreatorName        string `db:"creator_name"`
	SubmittedAt        string `db:"submitted_at"`
	ApprovedBy         string `db:"approved_by"`
	ApprovedAt         string `db:"approved_at"`
	CreatedAt          string `db:"created_at"`
	UpdatedAt          string `db:"updated_at"`
}

// ListFilter は一覧の絞り込み条件。
type ListFilter struct {
	ServiceUserID string
	Status        string
	// Search は利用者名の部分一致。
	Search string
}

// Queries は個別支援計画サービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

// listQuery は対象期間の開始日が新しい順に並べる一覧のSELECT文を組み立てる。
func listQuery(table, columns string, f ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.ServiceUserID != "" {
		where = append(where, "service_user_id = ?")
		args = append(args, f.ServiceUserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, "instr(lower(service_user_name), lower(?)) > 0")
		args = append(args, f.Search)
	}
	query := `SELECT ` + columns + ` FROM ` + table
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return query + ` ORDER BY period_start DESC, created_at DESC, id`, args
}

// updateContent は状態がfromの記録の期間と本文を書き換える。書き換えた件数を返す。
func (q *Queries) updateContent(ctx context.Context, table, id, from, start, end, content, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE `+table+` SET period_start = ?, period_end = ?, content = ?, updated_at = ?
		WHERE id = ? AND status = ?`, start, end, content, now, id, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// setStatus は状態がfromの記録をtoに変える。提出済みにする場合はsubmitted_atを記録する。
func (q *Queries) setStatus(ctx context.Context, table, id, from, to, now string) (int64, error) {
	submittedAt := ""
	if to == "submitted" {
		submittedAt = now
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE `+table+` SET status = ?, submitted_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`, to, submittedAt, now, id, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const monitoringColumns = `id, service_user_id, service_user_name, period_start, period_end, content, status,
	created_by, creator_name, submitted_at, reviewed_by, reviewed_at, created_at, updated_at`

// ListMonitoringRecords はモニタリング記録を対象期間の新しい順に返す。
func (q *Queries) ListMonitoringRecords(ctx context.Context, f ListFilter) ([]MonitoringRecord, error) {
	query, args := listQuery("monitoring_records", monitoringColumns, f)
	var rows []MonitoringRecord
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetMonitoringRecord はモニタリング記録を1件取得する。
func (q *Queries) GetMonitoringRecord(ctx context.Context, id string) (MonitoringRecord, error) {
	var r MonitoringRecord
	err := sqlx.GetContext(ctx, q.db, &r, `SELECT `+monitoringColumns+` FROM monitoring_records WHERE id = ?`, id)
	return r, err
}

// CreateMonitoringRecord はモニタリング記録を1件登録する。
func (q *Queries) CreateMonitoringRecord(ctx context.Context, r MonitoringRecord) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO monitoring_records (`+monitoringColumns+`)
		VALUES (:id, :service_user_id, :service_user_name, :period_start, :period_end, :content, :status,
			:created_by, :creator_name, :submitted_at, :reviewed_by, :reviewed_at, :created_at, :updated_at)`, r)
	return err
}

// UpdateMonitoringContent は下書きのモニタリング記録の期間と本文を書き換える。
func (q *Queries) UpdateMonitoringContent(ctx context.Context, id, start, end, content, now string) (int64, error) {
	return q.updateContent(ctx, "monitoring_records", id, "draft", start, end, content, now)
}

// SetMonitoringStatus はモニタリング記録の状態を変える。
func (q *Queries) SetMonitoringStatus(ctx context.Context, id, from, to, now string) (int64, error) {
	return q.setStatus(ctx, "monitoring_records", id, from, to, now)
}

// ReviewMonitoringRecord は未確認の提出済みモニタリング記録に確認者を記録する。
func (q *Queries) ReviewMonitoringRecord(ctx context.Context, id, reviewer, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE monitoring_records SET reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'submitted' AND reviewed_by = ''`, reviewer, now, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const planColumns = `id, service_user_id, service_user_name, monitoring_record_id, period_start, period_end,
	content, status, created_by, creator_name, submitted_at, approved_by, approved_at, created_at, updated_at`

// ListSupportPlans は個別支援計画を計画期間の新しい順に返す。
func (q *Queries) ListSupportPlans(ctx context.Context, f ListFilter) ([]SupportPlan, error) {
	query, args := listQuery("support_plans", planColumns, f)
	var rows []SupportPlan
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetSupportPlan は個別支援計画を1件取得する。
func (q *Queries) GetSupportPlan(ctx context.Context, id string) (SupportPlan, error) {
	var p SupportPlan
	err := sqlx.GetContext(ctx, q.db, &p, `SELECT `+planColumns+` FROM support_plans WHERE id = ?`, id)
	return p, err
}

// CreateSupportPlan は個別支援計画を1件登録する。
func (q *Queries) CreateSupportPlan(ctx context.Context, p SupportPlan) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO support_plans (`+planColumns+`)
		VALUES (:id, :service_user_id, :service_user_name, :monitoring_record_id, :period_start, :period_end,
			:content, :status, :created_by, :creator_name, :submitted_at, :approved_by, :approved_at, :created_at, :updated_at)`, p)
	return err
}

// UpdateSupportPlanContent は下書きの個別支援計画の期間と本文を書き換える。
func (q *Queries) UpdateSupportPlanContent(ctx context.Context, id, start, end, content, now string) (int64, error) {
	return q.updateContent(ctx, "support_plans", id, "draft", start, end, content, now)
}

// SetSupportPlanStatus は個別支援計画の状態を変える。
func (q *Queries) SetSupportPlanStatus(ctx context.Context, id, from, to, now string) (int64, error) {
	return q.setStatus(ctx, "support_plans", id, from, to, now)
}

// ApproveSupportPlan は未承認の提出済み個別支援計画に承認者を記録する。
func (q *Queries) ApproveSupportPlan(ctx context.Context, id, approver, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE support_plans SET approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND status = 'submitted' AND approved_by = ''`, approver, now, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
