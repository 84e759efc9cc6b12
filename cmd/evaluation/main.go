// 自己評価サービスのエントリポイント。
// 年度ごとの自己点検・自己評価の回答、集計、評価表のPDF出力を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/evaluation"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("evaluation")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := evaluation.NewServer(cfg)
	if err != nil {
		log.Fatalf("自己評価サーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("自己評価サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("自己評価サービスの起動に失敗: %v", err)
	}
}
