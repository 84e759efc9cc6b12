// Package evaluationdb は自己評価サービスのSQLクエリを提供する。
package evaluationdb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Evaluation はevaluationsテーブルの行。
type Evaluation struct {
	Year        int    `db:"year"`
	CreatedBy   string `db:"created_by"`
	CreatedAt   string `db:"created_at"`
	UpdatedBy   string `db:"updated_by"`
	UpdatedAt   string `db:"updated_at"`
	IsCompleted bool   `db:"is_completed"`
	CompletedAt string `db:"completed_at"`
}

// Response はevaluation_responsesテーブルの行。
type Response struct {
	Year       int    `db:"year"`
	QuestionID string `db:"question_id"`
	Score      int    `db:"score"`
	Comment    string `db:"comment"`
}

// Queries は自己評価サービスのクエリを実行する。
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

const evaluationColumns = `year, created_by, created_at, updated_by, updated_at, is_completed, completed_at`

// ListEvaluations は自己評価を年度の新しい順に返す。
func (q *Queries) ListEvaluations(ctx context.Context) ([]Evaluation, error) {
	var rows []Evaluation
	err := sqlx.SelectContext(ctx, q.db, &rows, `SELECT `+evaluationColumns+` FROM evaluations ORDER BY year DESC`)
	return rows, err
}

// GetEvaluation は年度の自己評価を取得する。
func (q *Queries) GetEvaluation(ctx context.Context, year int) (Evaluation, error) {
	var e Evaluation
	err := sqlx.GetContext(ctx, q.db, &e, `SELECT `+evaluationColumns+` FROM evaluations WHERE year = ?`, year)
	return e, err
}

// UpsertEvaluation は年度の自己評価を作成するか、更新者と更新日時を書き換える。
func (q *Queries) UpsertEvaluation(ctx context.Context, e Evaluation) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO evaluations (`+evaluationColumns+`)
		VALUES (:year, :created_by, :created_at, :updated_by, :updated_at, :is_completed, :completed_at)
		ON CONFLICT(year) DO UPDATE SET updated_by = excluded.updated_by, updated_at = excluded.updated_at`, e)
	return err
}

// Complete は未完了の自己評価を完了にする。既に完了していた場合はfalseを返す。
func (q *Queries) Complete(ctx context.Context, year int, by, at string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE evaluations SET is_completed = 1, completed_at = ?, updated_by = ?, updated_at = ?
		WHERE year = ? AND is_completed = 0`, at, by, at, year)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListResponses は年度の回答を返す。
func (q *Queries) ListResponses(ctx context.Context, year int) ([]Response, error) {
	var rows []Response
	err := sqlx.SelectContext(ctx, q.db, &rows, `
		SELECT year, question_id, score, comment FROM evaluation_responses
		WHERE year = ? ORDER BY question_id`, year)
	return rows, err
}

// ListAllResponses は全年度の回答を返す。
func (q *Queries) ListAllResponses(ctx context.Context) ([]Response, error) {
	var rows []Response
	err := sqlx.SelectContext(ctx, q.db, &rows, `
		SELECT year, question_id, score, comment FROM evaluation_responses ORDER BY year, question_id`)
	return rows, err
}

// UpsertResponse は回答を保存する。
func (q *Queries) UpsertResponse(ctx context.Context, r Response) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO evaluation_responses (year, question_id, score, comment)
		VALUES (:year, :question_id, :score, :comment)
		ON CONFLICT(year, question_id) DO UPDATE SET score = excluded.score, comment = excluded.comment`, r)
	return err
}
