package errreport

import (
	"errors"
	"testing"
)

// TestInit はトークン未設定時に報告が無効になることを検証する。
func TestInit(t *testing.T) {
	if Init("", "TEST", "shift", "dev") {
		t.Fatal("トークン未設定でInit()がtrueを返した")
	}
	if Enabled() {
		t.Fatal("トークン未設定で報告が有効になっている")
	}

	// 無効な状態では何も送信せずに戻ること
	Report(errors.New("テストエラー"), map[string]any{"path": "/api/v1/shifts"})
	Report(nil, nil)
	ReportPanic("テストパニック", nil)
	Close()
}
