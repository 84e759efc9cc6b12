// Package complaintdb は苦情・要望サービスのSQLクエリを提供する。
package complaintdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Complaint はcomplaintsテーブルの行。ResponseCountは対応記録の件数。
type Complaint struct {
	ID              string `db:"id"`
	SubmittedBy     string `db:"submitted_by"`
	ReceiverName    string `db:"receiver_name"`
	SubmittedAt     string `db:"submitted_at"`
	ComplainantType string `db:"complainant_type"`
	ComplainantName string `db:"complainant_name"`
	ComplaintDate   string `db:"complaint_date"`
	Content         string `db:"content"`
	Status          string `db:"status"`
	ResolvedAt      string `db:"resolved_at"`
	UpdatedAt       string `db:"updated_at"`
	ResponseCount   int    `db:"response_count"`
}

// Response はcomplaint_responsesテーブルの行。
type Response struct {
	ID            string `db:"id"`
	ComplaintID   string `db:"complaint_id"`
	RespondedAt   string `db:"responded_at"`
	RespondedBy   string `db:"responded_by"`
	ResponderName string `db:"responder_name"`
	Content       string `db:"content"`
}

// ListFilter は一覧の絞り込み条件。Searchは内容と申し出人氏名の部分一致。
type ListFilter struct {
	Status string
	Type   string
	Search string
	// Oldest がtrueの場合は受付日時の古い順に並べる。
	Oldest bool
}

// Queries は苦情・要望サービスのクエリを実行する。
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

const complaintColumns = `c.id, c.submitted_by, c.receiver_name, c.submitted_at, c.complainant_type,
	c.complainant_name, c.complaint_date, c.content, c.status, c.resolved_at, c.updated_at,
	(SELECT COUNT(*) FROM complaint_responses r WHERE r.complaint_id = c.id) AS response_count`

// ListComplaints は苦情・要望を受付日時の新しい順（Oldestなら古い順）に返す。
func (q *Queries) ListComplaints(ctx context.Context, f ListFilter) ([]Complaint, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "c.status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where = append(where, "c.complainant_type = ?")
		args = append(args, f.Type)
	}
	if f.Search != "" {
		where = append(where, "(instr(lower(c.content), lower(?)) > 0 OR instr(lower(c.complainant_name), lower(?)) > 0)")
		args = append(args, f.Search, f.Search)
	}

	query := `SELECT ` + complaintColumns + ` FROM complaints c`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.Oldest {
		query += ` ORDER BY c.submitted_at ASC, c.id`
	} else {
		query += ` ORDER BY c.submitted_at DESC, c.id`
	}

	var rows []Complaint
	err := sqlx.SelectContext(ctx, q.db, &rows, query, args...)
	return rows, err
}

// GetComplaint は苦情・要望を1件取得する。
func (q *Queries) GetComplaint(ctx context.Context, id string) (Complaint, error) {
	var c Complaint
	err := sqlx.GetContext(ctx, q.db, &c, `SELECT `+complaintColumns+` FROM complaints c WHERE c.id = ?`, id)
	return c, err
}

// CreateComplaint は苦情・要望を1件登録する。
func (q *Queries) CreateComplaint(ctx context.Context, c Complaint) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO complaints (id, submitted_by, receiver_name, submitted_at, complainant_type,
			complainant_name, complaint_date, content, status, resolved_at, updated_at)
		VALUES (:id, :submitted_by, :receiver_name, :submitted_at, :complainant_type,
			:complainant_name, :complaint_date, :content, :status, :resolved_at, :updated_at)`, c)
	return err
}

// ListResponses は対応記録を対応日時の順に返す。
func (q *Queries) ListResponses(ctx context.Context, complaintID string) ([]Response, error) {
	var rows []Response
	err := sqlx.SelectContext(ctx, q.db, &rows, `
		SELECT id, complaint_id, responded_at, responded_by, responder_name, content
		FROM complaint_responses WHERE complaint_id = ?
		ORDER BY responded_at, id`, complaintID)
	return rows, err
}

// CreateResponse は対応記録を1件追加する。
func (q *Queries) CreateResponse(ctx context.Context, r Response) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO complaint_responses (id, complaint_id, responded_at, responded_by, responder_name, content)
		VALUES (:id, :complaint_id, :responded_at, :responded_by, :responder_name, :content)`, r)
	return err
}

// UpdateStatus は解決済みでない苦情・要望の対応状況をtoに変更する。
// 解決済みだった場合はfalseを返す。
func (q *Queries) UpdateStatus(ctx context.Context, id, to, resolvedAt, updatedAt string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE complaints SET status = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status <> 'resolved'`, to, resolvedAt, updatedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
