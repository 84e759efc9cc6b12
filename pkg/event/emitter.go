package event

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nao1215/shiftcare/pkg/httpclient"
)

// AppendRequest はEvent Storeへのイベント追記リクエストのJSON構造。
type AppendRequest struct {
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id" binding:"required"`
	// AggregateType は対象エンティティの種類。
	AggregateType string `json:"aggregate_type" binding:"required"`
	// EventType はイベントの種類。
	EventType string `json:"event_type" binding:"required"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data" binding:"required"`
}

// Emitter は変更イベントをEvent Storeへ送信する。
// 送信に失敗しても呼び出し元の処理は失敗させず、ログに記録するだけにする。
type Emitter struct {
	client *httpclient.Client
}

// NewEmitter はEvent StoreのベースURLを指定してEmitterを生成する。
func NewEmitter(eventStoreURL string) *Emitter {
	return &Emitter{client: httpclient.New(eventStoreURL)}
}

// NewEmitterWithClient は既存のクライアントを使うEmitterを生成する。
func NewEmitterWithClient(client *httpclient.Client) *Emitter {
	return &Emitter{client: client}
}

// Emit はイベントをEvent Storeに追記する。
// nilのEmitterに対して呼び出した場合は何もしない。
func (e *Emitter) Emit(ctx context.Context, aggregateID string, aggregateType AggregateType, eventType Type, data any) {
	if e == nil || e.client == nil {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Event] %sイベントデータのシリアライズに失敗: %v", eventType, err)
		return
	}

	req := AppendRequest{
		AggregateID:   aggregateID,
		AggregateType: string(aggregateType),
		EventType:     string(eventType),
		Data:          jsonData,
	}

	var resp Event
	if err := e.client.PostJSON(ctx, "/api/v1/events", req, &resp); err != nil {
		log.Printf("[Event] %sイベントの送信に失敗 (aggregate_id=%s): %v", eventType, aggregateID, err)
	}
}

// EmitChange は行レベルの変更イベントを送信する。
func EmitChange[T any](ctx context.Context, e *Emitter, aggregateID string, aggregateType AggregateType, eventType Type, oldRow, newRow *T) {
	e.Emit(ctx, aggregateID, aggregateType, eventType, Change[T]{Old: oldRow, New: newRow})
}
