// シフトサービスのエントリポイント。
// シフトの登録と検証、月次の生成シフト、休日希望を扱う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/shift"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

var version = "dev"

func main() {
	cfg, err := config.Load("shift")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := shift.NewServer(cfg)
	if err != nil {
		log.Fatalf("シフトサーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("シフトサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("シフトサービスの起動に失敗: %v", err)
	}
}
