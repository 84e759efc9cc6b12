package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/shiftcare/internal/staff"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/httpclient"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/spreadsheet"
)

// ErrImportFailed は登録に失敗した行があった場合のエラー。
var ErrImportFailed = errors.New("登録に失敗した行があります")

type importStaffOptions struct {
	staffURL string
	token    string
	secret   string
	dryRun   bool
}

func newImportStaffCmd() *cobra.Command {
	var opts importStaffOptions

	cmd := &cobra.Command{
		Use:   "import-staff <file>",
		Short: "名簿ファイル（xlsx / xls）のスタッフを1行ずつ登録する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportStaff(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.staffURL, "staff-url", "", "スタッフサービスのURL（省略時はSTAFF_URLの設定値）")
	cmd.Flags().StringVar(&opts.token, "token", "", "管理者のJWTトークン（省略時はデモ管理者のトークンを発行）")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "トークン発行に使うJWT署名鍵")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "登録せずに読み取った内容だけを表示する")
	return cmd
}

func runImportStaff(cmd *cobra.Command, path string, opts importStaffOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ファイルを開けません: %w", err)
	}
	defer f.Close()

	table, err := spreadsheet.ReadRows(path, f)
	if err != nil {
		return err
	}
	rows, err := staff.ParseImport(table)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.dryRun {
		for _, r := range rows {
			_, _ = fmt.Fprintf(out, "行%d: %s <%s>\n", r.Line, r.Input.Name, r.Input.Email)
		}
		_, _ = fmt.Fprintf(out, "読み取り: %d件\n", len(rows))
		return nil
	}

	if opts.staffURL == "" {
		cfg, err := config.Load("shiftcarectl")
		if err != nil {
			return err
		}
		opts.staffURL = cfg.StaffURL
	}
	if opts.token == "" {
		if opts.token, err = issueToken(middleware.RoleAdmin, opts.secret); err != nil {
			return err
		}
	}

	client := httpclient.New(opts.staffURL, httpclient.WithBearerToken(opts.token))
	created, failed := 0, 0
	for _, r := range rows {
		var res struct {
			Staff struct {
				ID string `json:"id"`
			} `json:"staff"`
		}
		err := client.PostJSON(cmd.Context(), "/api/v1/staff", r.Input, &res)
		if err == nil {
			created++
			_, _ = fmt.Fprintf(out, "行%d %s: 登録しました (id=%s)\n", r.Line, r.Input.Name, res.Staff.ID)
			continue
		}
		failed++
		_, _ = fmt.Fprintf(out, "行%d %s: %s\n", r.Line, r.Input.Name, describeImportError(err))
	}
	_, _ = fmt.Fprintf(out, "登録: %d件, 失敗: %d件\n", created, failed)

	if failed > 0 {
		return ErrImportFailed
	}
	return nil
}

func describeImportError(err error) string {
	var se *httpclient.StatusError
	switch {
	case httpclient.IsStatus(err, http.StatusConflict):
		return "メールアドレスが重複しています"
	case errors.As(err, &se):
		return fmt.Sprintf("登録できません (status=%d) %s", se.StatusCode, se.Body)
	default:
		return err.Error()
	}
}
