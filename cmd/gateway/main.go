// API Gatewayサービスのエントリポイント。
// デモログインによるJWT発行と、各サービスへのリクエスト転送を担う。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/gateway"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("gateway")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := gateway.NewServer(cfg)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("Gatewayサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}
