// Package errreport はパニックや予期しないエラーを外部サービス（Rollbar）へ報告する。
// トークンが未設定の場合は何も送信しない。
package errreport

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/rollbar/rollbar-go"
)

// enabled はRollbarへの送信が有効かどうか。
var enabled atomic.Bool

// Init はRollbarクライアントを初期化する。
// tokenが空の場合は報告を無効にしてfalseを返す。
func Init(token, env, service, version string) bool {
	if token == "" {
		enabled.Store(false)
		rollbar.SetEnabled(false)
		return false
	}

	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetServerHost(service)
	rollbar.SetCodeVersion(version)
	rollbar.SetEnabled(true)
	enabled.Store(true)
	log.Printf("[ErrReport] Rollbarへのエラー報告を有効化しました (env=%s)", env)
	return true
}

// Enabled は報告が有効かどうかを返す。
func Enabled() bool {
	return enabled.Load()
}

// Report はエラーを報告する。
func Report(err error, fields map[string]any) {
	if err == nil || !enabled.Load() {
		return
	}
	rollbar.Error(err, fields)
}

// ReportPanic はrecoverで回収した値を致命的エラーとして報告する。
func ReportPanic(recovered any, fields map[string]any) {
	if !enabled.Load() {
		return
	}
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	rollbar.Critical(err, fields)
}

// Close は送信待ちの報告を送り切る。プロセス終了前に呼び出す。
func Close() {
	if enabled.Load() {
		rollbar.Wait()
	}
}
