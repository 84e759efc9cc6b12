// 個別支援計画サービスのエントリポイント。
// モニタリング記録と個別支援計画の作成・提出・承認、帳票のPDF出力を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/careplan"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("careplan")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := careplan.NewServer(cfg)
	if err != nil {
		log.Fatalf("個別支援計画サーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("個別支援計画サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("個別支援計画サービスの起動に失敗: %v", err)
	}
}
