// Package changefeed は変更イベントをNATSで配信・購読する。
//
// Event Storeは追記に成功したイベントを "shiftcare.events.<Aggregate>.<EventType>" に発行し、
// 通知サービスなどの購読側は "shiftcare.events.>" をまとめて購読する。
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nao1215/shiftcare/pkg/event"
)

// SubjectPrefix は変更イベントのサブジェクトの接頭辞。
const SubjectPrefix = "shiftcare.events"

// AllSubjects は全ての変更イベントにマッチするサブジェクト。
const AllSubjects = SubjectPrefix + ".>"

// Dispatch がハンドラを呼び出す最大回数と、再試行までの待ち時間。
var (
	maxDispatchAttempts = 3
	dispatchRetryWait   = 200 * time.Millisecond
)

// ErrNoConnection はNATS接続が無い状態で購読しようとした場合のエラー。
var ErrNoConnection = errors.New("NATSに接続されていません")

// Subject はイベントの発行先サブジェクトを返す。
func Subject(aggregateType event.AggregateType, eventType event.Type) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, aggregateType, eventType)
}

// Connect はNATSサーバーに接続する。切断時は無期限に再接続を試みる。
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[ChangeFeed] NATSから切断されました: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[ChangeFeed] NATSに再接続しました: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("NATSへの接続に失敗 (%s): %w", url, err)
	}
	return nc, nil
}

// Publisher は変更イベントをNATSに発行する。
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher はPublisherを生成する。ncがnilの場合、Publishは何もしない。
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish はイベントを発行する。
func (p *Publisher) Publish(e *event.Event) error {
	if p == nil || p.nc == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	if err := p.nc.Publish(Subject(e.AggregateType, e.EventType), data); err != nil {
		return fmt.Errorf("イベントの発行に失敗: %w", err)
	}
	return nil
}

// Handler は受信した変更イベントを処理する関数。
type Handler func(ctx context.Context, e *event.Event) error

// Decode はNATSメッセージから変更イベントを取り出す。
func Decode(msg *nats.Msg) (*event.Event, error) {
	var e event.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		return nil, fmt.Errorf("イベントのデシリアライズに失敗 (subject=%s): %w", msg.Subject, err)
	}
	if e.ID == "" || e.EventType == "" {
		return nil, fmt.Errorf("イベントIDまたは種類が空です (subject=%s)", msg.Subject)
	}
	return &e, nil
}

// Dispatch は1件のメッセージを復号してハンドラに渡す。
// ハンドラが失敗した場合は待ち時間を倍にしながら再試行し、最後の失敗をログに記録する。
// データを解釈できないイベントは再試行しない。
func Dispatch(ctx context.Context, msg *nats.Msg, handler Handler) {
	e, err := Decode(msg)
	if err != nil {
		log.Printf("[ChangeFeed] %v", err)
		return
	}

	wait := dispatchRetryWait
	for attempt := 1; ; attempt++ {
		err := handler(ctx, e)
		if err == nil {
			return
		}
		if errors.Is(err, event.ErrMalformedData) {
			log.Printf("[ChangeFeed] 解釈できないイベントを読み飛ばしました (id=%s, type=%s): %v", e.ID, e.EventType, err)
			return
		}
		if attempt >= maxDispatchAttempts {
			log.Printf("[ChangeFeed] イベント処理エラー (id=%s, type=%s, attempts=%d): %v", e.ID, e.EventType, attempt, err)
			return
		}
		select {
		case <-ctx.Done():
			log.Printf("[ChangeFeed] 再試行を中断しました (id=%s, type=%s): %v", e.ID, e.EventType, err)
			return
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// Subscribe は全ての変更イベントを購読する。ctxが終了すると購読を解除する。
func Subscribe(ctx context.Context, nc *nats.Conn, handler Handler) (*nats.Subscription, error) {
	if nc == nil {
		return nil, ErrNoConnection
	}
	sub, err := nc.Subscribe(AllSubjects, func(msg *nats.Msg) {
		Dispatch(ctx, msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("変更イベントの購読に失敗: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			log.Printf("[ChangeFeed] 購読解除に失敗: %v", err)
		}
	}()
	log.Printf("[ChangeFeed] %s の購読を開始しました", AllSubjects)
	return sub, nil
}
