// イベントストアサービスのエントリポイント。
// 各サービスが追記する変更イベントを永続化し、通知サービスへの変更ストリームとして提供する。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/eventstore"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("eventstore")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := eventstore.NewServer(cfg)
	if err != nil {
		log.Fatalf("イベントストアサーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("イベントストアサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("イベントストアサービスの起動に失敗: %v", err)
	}
}
