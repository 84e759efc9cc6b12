// 防災・感染症記録サービスのエントリポイント。
// 防災訓練と感染症対応の記録、記録票のPDF出力を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/safety"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("safety")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := safety.NewServer(cfg)
	if err != nil {
		log.Fatalf("防災・感染症記録サーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("防災・感染症記録サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("防災・感染症記録サービスの起動に失敗: %v", err)
	}
}
