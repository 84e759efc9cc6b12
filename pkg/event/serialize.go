package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedData はイベントデータが期待する形に復号できない場合のエラー。
// 何度処理しても成功しないため、購読側は再試行せずに読み飛ばす。
var ErrMalformedData = errors.New("イベントデータを解釈できません")

// New は新しいイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(aggregateID string, aggregateType AggregateType, eventType Type, version int64, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Version:       version,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	return &data, nil
}

// DecodeChange は行レベルの変更イベントから変更前後の行を取り出す。
// 変更後の行が無い場合（削除イベント）はエラーにせず、Newがnilのまま返す。
func DecodeChange[T any](e *Event) (*Change[T], error) {
	return DecodeData[Change[T]](e)
}
