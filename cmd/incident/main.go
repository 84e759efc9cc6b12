// 事故報告サービスのエントリポイント。
// 事故・ヒヤリハットの報告と対応状況の管理、報告書のPDF出力を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/incident"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("incident")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := incident.NewServer(cfg)
	if err != nil {
		log.Fatalf("事故報告サーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("事故報告サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("事故報告サービスの起動に失敗: %v", err)
	}
}
