// 苦情・要望サービスのエントリポイント。
// 苦情・要望の受付と対応記録の管理、対応報告書のPDF出力を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/complaint"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("complaint")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := complaint.NewServer(cfg)
	if err != nil {
		log.Fatalf("苦情・要望サーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("苦情・要望サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("苦情・要望サービスの起動に失敗: %v", err)
	}
}
