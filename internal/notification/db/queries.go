// Package notificationdb は通知サービスのSQLクエリを提供する。
package notificationdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Notification はnotificationsテーブルの行。
type Notification struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	Type          string         `db:"type"`
	Title         string         `db:"title"`
	Message       string         `db:"message"`
	IsRead        bool           `db:"is_read"`
	SourceEventID sql.NullString `db:"source_event_id"`
	CreatedAt     string         `db:"created_at"`
}

// Queries は通知サービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクション内で実行するQueriesを返す。
func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{db: tx}
}

const notificationColumns = `id, user_id, type, title, message, is_read, source_event_id, created_at`

// CreateNotification は通知を1件作成する。
// 同じ変更イベントから同じユーザーへの通知が既にある場合は一意制約違反になる。
func (q *Queries) CreateNotification(ctx context.Context, n Notification) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :user_id, :type, :title, :message, :is_read, :source_event_id, :created_at)`, n)
	return err
}

// RecordDelivery は変更イベントからユーザーへ通知を届けたことを記録する。
// 既に記録がある場合は一意制約違反になる。
func (q *Queries) RecordDelivery(ctx context.Context, sourceEventID, userID, now string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO deliveries (source_event_id, user_id, delivered_at) VALUES (?, ?, ?)`,
		sourceEventID, userID, now)
	return err
}

// GetNotificationByID は通知を1件取得する。
func (q *Queries) GetNotificationByID(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := sqlx.GetContext(ctx, q.db, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	return n, err
}

// ListNotificationsByUserID はユーザーの通知を新しい順にlimit件返す。
func (q *Queries) ListNotificationsByUserID(ctx context.Context, userID string, limit int) ([]Notification, error) {
	var ns []Notification
	err := sqlx.SelectContext(ctx, q.db, &ns, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	return ns, err
}

// ListUnreadNotifications はユーザーの未読通知を新しい順に返す。
func (q *Queries) ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error) {
	var ns []Notification
	err := sqlx.SelectContext(ctx, q.db, &ns, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ? AND is_read = 0
		ORDER BY created_at DESC, id DESC`, userID)
	return ns, err
}

// CountUnread はユーザーの未読通知の件数を返す。
func (q *Queries) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID)
	return n, err
}

// MarkAsRead は通知を既読にする。
func (q *Queries) MarkAsRead(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	return err
}

// MarkAllAsRead はユーザーの全通知を既読にし、更新件数を返す。
func (q *Queries) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteNotification は通知を1件削除する。
func (q *Queries) DeleteNotification(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	return err
}

// DeleteAllNotifications はユーザーの全通知を削除し、削除件数を返す。
func (q *Queries) DeleteAllNotifications(ctx context.Context, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneNotifications はユーザーの通知のうち新しい順にkeep件を残して削除する。
func (q *Queries) PruneNotifications(ctx context.Context, userID string, keep int) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM notifications
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)`, userID, userID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetCursor は変更ストリームの読み取り位置を返す。未保存の場合は空文字列。
func (q *Queries) GetCursor(ctx context.Context, name string) (string, error) {
	var ts string
	err := sqlx.GetContext(ctx, q.db, &ts, `SELECT last_timestamp FROM feed_cursors WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return ts, err
}

// SaveCursor は変更ストリームの読み取り位置を保存する。
func (q *Queries) SaveCursor(ctx context.Context, name, lastTimestamp, now string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO feed_cursors (name, last_timestamp, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET last_timestamp = excluded.last_timestamp, updated_at = excluded.updated_at`,
		name, lastTimestamp, now)
	return err
}
