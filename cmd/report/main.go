// 日報サービスのエントリポイント。
// 日報の提出・確認・承認を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/report"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("report")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := report.NewServer(cfg)
	if err != nil {
		log.Fatalf("日報サーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("日報サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("日報サービスの起動に失敗: %v", err)
	}
}
