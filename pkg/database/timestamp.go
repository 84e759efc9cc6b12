package database

import (
	"fmt"
	"time"
)

// TimestampLayout はDBに保存する日時の形式。
// 固定長のため文字列比較の順序が時系列順と一致する。
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// DateLayout は日付カラムの形式。
const DateLayout = "2006-01-02"

// Timestamp は日時をUTCの固定長文字列に変換する。
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Now は現在日時を固定長文字列で返す。
func Now() string {
	return Timestamp(time.Now())
}

// ParseTimestamp はDBに保存された日時文字列を解析する。
// RFC3339形式も受け付ける。
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解析に失敗 (%q): %w", s, err)
	}
	return t.UTC(), nil
}

// RFC3339 はDBの日時文字列をRFC3339形式に変換する。解析できない場合は元の文字列を返す。
func RFC3339(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return t.Format(time.RFC3339)
}
