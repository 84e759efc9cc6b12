// Package eventstoredb はイベントストアのSQLクエリを提供する。
package eventstoredb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Event はeventsテーブルの行。
type Event struct {
	ID            string `db:"id"`
	AggregateID   string `db:"aggregate_id"`
	AggregateType string `db:"aggregate_type"`
	EventType     string `db:"event_type"`
	Data          string `db:"data"`
	Version       int64  `db:"version"`
	CreatedAt     string `db:"created_at"`
}

// Queries はイベントストアのクエリを実行する。
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

const eventColumns = `id, aggregate_id, aggregate_type, event_type, data, version, created_at`

// AppendEvent はイベントを1件追記する。
func (q *Queries) AppendEvent(ctx context.Context, e Event) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (:id, :aggregate_id, :aggregate_type, :event_type, :data, :version, :created_at)`, e)
	return err
}

// GetLatestVersion はAggregateの最新バージョンを返す。イベントが無い場合は0。
func (q *Queries) GetLatestVersion(ctx context.Context, aggregateID string) (int64, error) {
	var v int64
	err := sqlx.GetContext(ctx, q.db, &v,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID)
	return v, err
}

// GetLatestCreatedAt は最も新しいイベントの作成日時を返す。イベントが無い場合は空文字。
func (q *Queries) GetLatestCreatedAt(ctx context.Context) (string, error) {
	var v string
	err := sqlx.GetContext(ctx, q.db, &v, `SELECT COALESCE(MAX(created_at), '') FROM events`)
	return v, err
}

// ListEvents は全てのイベントを作成日時順に返す。
func (q *Queries) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := sqlx.SelectContext(ctx, q.db, &events,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at, id LIMIT ?`, limit)
	return events, err
}

// ListEventsByAggregateID はAggregateのイベントをバージョン順に返す。
func (q *Queries) ListEventsByAggregateID(ctx context.Context, aggregateID string) ([]Event, error) {
	var events []Event
	err := sqlx.SelectContext(ctx, q.db, &events,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = ? ORDER BY version`, aggregateID)
	return events, err
}

// ListEventsByType はイベントタイプが一致するイベントを作成日時順に返す。
func (q *Queries) ListEventsByType(ctx context.Context, eventType string) ([]Event, error) {
	var events []Event
	err := sqlx.SelectContext(ctx, q.db, &events,
		`SELECT `+eventColumns+` FROM events WHERE event_type = ? ORDER BY created_at, id`, eventType)
	return events, err
}

// ListEventsSince はsinceより後に作成されたイベントを作成日時順に返す。
func (q *Queries) ListEventsSince(ctx context.Context, since string, limit int) ([]Event, error) {
	var events []Event
	err := sqlx.SelectContext(ctx, q.db, &events,
		`SELECT `+eventColumns+` FROM events WHERE created_at > ? ORDER BY created_at, id LIMIT ?`, since, limit)
	return events, err
}
