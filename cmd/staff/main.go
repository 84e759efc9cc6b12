// スタッフサービスのエントリポイント。
// スタッフ名簿の管理と勤務体制一覧表の出力を担う。
package main

import (
	"log"

	"github.com/nao1215/shiftcare/internal/staff"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/errreport"
)

// version はビルド時に -ldflags で埋め込む。
var version = "dev"

func main() {
	cfg, err := config.Load("staff")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	errreport.Init(cfg.RollbarToken, cfg.Env, cfg.Service, version)
	defer errreport.Close()

	server, err := staff.NewServer(cfg)
	if err != nil {
		log.Fatalf("スタッフサーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("スタッフサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("スタッフサービスの起動に失敗: %v", err)
	}
}
