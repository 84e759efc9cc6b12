// shiftcarectl はShiftCareの運用コマンド。
// デモ用トークンの発行と名簿ファイルからのスタッフ一括登録を行う。
package main

import (
	"fmt"
	"os"

	"github.com/nao1215/shiftcare/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}
