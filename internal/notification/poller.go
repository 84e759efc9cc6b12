package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	notificationdb "github.com/nao1215/shiftcare/internal/notification/db"
	"github.com/nao1215/shiftcare/pkg/changefeed"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/httpclient"
)

// pollerCursorName はfeed_cursorsテーブルでのポーラーの読み取り位置の名前。
const pollerCursorName = "eventstore"

const (
	// DefaultPollInterval はEvent Storeをポーリングする間隔。
	DefaultPollInterval = 2 * time.Second
	// ReconcileInterval はNATS購読中に取りこぼしを拾い直す間隔。
	ReconcileInterval = 30 * time.Second
)

// Poller はEvent Storeの変更イベントをポーリングし、ハンドラに渡すバックグラウンドプロセス。
// NATSを使わない構成での変更ストリームの購読を担当する。
type Poller struct {
	// queries は読み取り位置の保存先。
	queries *notificationdb.Queries
	// client はEvent Storeとの通信用HTTPクライアント。
	client *httpclient.Client
	// handler は取得したイベントを処理する。
	handler changefeed.Handler
	// interval はポーリング間隔。
	interval time.Duration
	// now は現在時刻を返す。
	now func() time.Time
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
}

// NewPoller は新しいPollerを生成する。
func NewPoller(queries *notificationdb.Queries, client *httpclient.Client, handler changefeed.Handler, interval time.Duration) *Poller {
	return &Poller{
		queries:  queries,
		client:   client,
		handler:  handler,
		interval: interval,
		now:      time.Now,
	}
}

// Start はバックグラウンドでEvent Storeのポーリングを開始する。
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		log.Println("[Poller] Event Storeのポーリングを開始します")
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[Poller] ポーリングを停止しました")
				return
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil {
					log.Printf("[Poller] ポーリングエラー: %v", err)
				}
			}
		}
	}()
}

// Stop はバックグラウンドのポーリングを停止する。
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// cursor は保存済みの読み取り位置を返す。
// 初回は起動時刻から読み始め、過去のイベントから通知を作り直さない。
func (p *Poller) cursor(ctx context.Context) (time.Time, error) {
	raw, err := p.queries.GetCursor(ctx, pollerCursorName)
	if err != nil {
		return time.Time{}, fmt.Errorf("読み取り位置の取得に失敗: %w", err)
	}
	if raw == "" {
		start := p.now()
		if err := p.saveCursor(ctx, start); err != nil {
			return time.Time{}, err
		}
		return start, nil
	}
	return database.ParseTimestamp(raw)
}

func (p *Poller) saveCursor(ctx context.Context, t time.Time) error {
	if err := p.queries.SaveCursor(ctx, pollerCursorName, database.Timestamp(t), database.Now()); err != nil {
		return fmt.Errorf("読み取り位置の保存に失敗: %w", err)
	}
	return nil
}

// Poll は読み取り位置より後のイベントを取得してハンドラに渡し、処理した件数を返す。
// 処理に失敗したイベントで止め、次回はそのイベントから再処理する。
// データを解釈できないイベントは再処理しても成功しないため、読み飛ばして先へ進む。
func (p *Poller) Poll(ctx context.Context) (int, error) {
	since, err := p.cursor(ctx)
	if err != nil {
		return 0, err
	}

	path := fmt.Sprintf("/api/v1/events/since?since=%s", url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))
	var events []event.Event
	if err := p.client.GetJSON(ctx, path, &events); err != nil {
		return 0, fmt.Errorf("Event Storeからのイベント取得に失敗: %w", err)
	}

	processed := 0
	for i := range events {
		e := &events[i]
		if err := p.handler(ctx, e); err != nil {
			if errors.Is(err, event.ErrMalformedData) {
				log.Printf("[Poller] 解釈できないイベントを読み飛ばしました (id=%s, type=%s)", e.ID, e.EventType)
				processed++
				continue
			}
			// 同じ時刻の処理済みイベントがあると、位置を進めると失敗したイベントを読み飛ばす
			if processed > 0 && events[processed-1].CreatedAt.Before(e.CreatedAt) {
				if serr := p.saveCursor(ctx, events[processed-1].CreatedAt); serr != nil {
					log.Printf("[Poller] %v", serr)
				}
			}
			return processed, fmt.Errorf("イベント処理エラー (id=%s, type=%s): %w", e.ID, e.EventType, err)
		}
		processed++
	}

	if processed > 0 {
		if err := p.saveCursor(ctx, events[processed-1].CreatedAt); err != nil {
			return processed, err
		}
		log.Printf("[Poller] %d件のイベントを処理しました", processed)
	}
	return processed, nil
}
