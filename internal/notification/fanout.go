package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	notificationdb "github.com/nao1215/shiftcare/internal/notification/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
)

// retentionPerUser はユーザーごとに保持する通知の件数。
const retentionPerUser = 100

// fanout の処理結果。メトリクスのラベルに使う。
const (
	resultCreated      = "created"
	resultDeduplicated = "deduplicated"
	resultFiltered     = "filtered"
	resultSkipped      = "skipped"
)

// Fanout は変更イベントを宛先ごとの通知に展開する。
//
// 宛先は変更された行の持ち主と、全ての有効な管理者。
// 同じイベントを再配送しても、配信記録 (source_event_id, user_id) があれば作り直さない。
// 配信記録は通知を削除しても残る。
type Fanout struct {
	// db は配信記録と通知を同時に保存するためのデータベース接続。
	db *sqlx.DB
	// queries は通知テーブルへのクエリ。
	queries *notificationdb.Queries
	// directory は管理者一覧の取得元。
	directory Directory
	// hub はSSE接続中の利用者への配信先。
	hub *Hub
	// results は処理結果ごとの件数。
	results *prometheus.CounterVec
}

// NewFanout はFanoutを生成する。
func NewFanout(db *sqlx.DB, directory Directory, hub *Hub, reg *metrics.Registry) *Fanout {
	return &Fanout{
		db:        db,
		queries:   notificationdb.New(db),
		directory: directory,
		hub:       hub,
		results:   reg.Counter("fanout_notifications_total", "変更イベントから生成した通知の処理結果ごとの件数", "result"),
	}
}

// Handle は1件の変更イベントを通知に変換して保存する。
// changefeed.Handler として使える。
func (f *Fanout) Handle(ctx context.Context, e *event.Event) error {
	draft, err := Derive(e)
	if err != nil {
		if errors.Is(err, event.ErrMalformedData) {
			f.results.WithLabelValues(resultSkipped).Inc()
			log.Printf("[Fanout] 解釈できないイベントを読み飛ばします (id=%s, type=%s): %v", e.ID, e.EventType, err)
		}
		return fmt.Errorf("イベントの解析に失敗 (id=%s, type=%s): %w", e.ID, e.EventType, err)
	}
	if draft == nil {
		f.results.WithLabelValues(resultFiltered).Inc()
		return nil
	}

	recipients, err := f.recipients(ctx, draft.OwnerID)
	if err != nil {
		return err
	}

	for _, userID := range recipients {
		if err := f.deliver(ctx, e.ID, userID, draft); err != nil {
			return err
		}
	}
	return nil
}

// recipients は通知の宛先を重複無しで返す。
// 管理者一覧が取れない場合でも持ち主には届ける。
func (f *Fanout) recipients(ctx context.Context, ownerID string) ([]string, error) {
	admins, err := f.directory.ActiveAdminIDs(ctx)
	if err != nil {
		if ownerID == "" {
			return nil, fmt.Errorf("通知先の管理者を決定できません: %w", err)
		}
		log.Printf("[Fanout] 管理者一覧の取得に失敗したため持ち主にのみ通知します: %v", err)
	}

	seen := make(map[string]struct{}, len(admins)+1)
	ids := make([]string, 0, len(admins)+1)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(ownerID)
	for _, id := range admins {
		add(id)
	}
	return ids, nil
}

// deliver は1人分の通知を保存し、SSEで配信する。
func (f *Fanout) deliver(ctx context.Context, eventID, userID string, draft *Draft) error {
	row := notificationdb.Notification{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          draft.Type,
		Title:         draft.Title,
		Message:       draft.Message,
		SourceEventID: sql.NullString{String: eventID, Valid: eventID != ""},
		CreatedAt:     database.Now(),
	}
	created, err := f.save(ctx, row)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗 (user_id=%s): %w", userID, err)
	}
	if !created {
		f.results.WithLabelValues(resultDeduplicated).Inc()
		return nil
	}
	f.results.WithLabelValues(resultCreated).Inc()

	if _, err := f.queries.PruneNotifications(ctx, userID, retentionPerUser); err != nil {
		log.Printf("[Fanout] 古い通知の削除に失敗 (user_id=%s): %v", userID, err)
	}
	f.hub.Publish(userID, toNotificationResponse(row))
	return nil
}

// save は配信記録と通知を1つのトランザクションで保存する。
// 既に届けたイベントの場合は何もせずfalseを返す。
func (f *Fanout) save(ctx context.Context, row notificationdb.Notification) (bool, error) {
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := f.queries.WithTx(tx)
	if row.SourceEventID.Valid {
		if err := q.RecordDelivery(ctx, row.SourceEventID.String, row.UserID, row.CreatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return false, nil
			}
			return false, err
		}
	}
	if err := q.CreateNotification(ctx, row); err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("コミットに失敗: %w", err)
	}
	return true, nil
}
