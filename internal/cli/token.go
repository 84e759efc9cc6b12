package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/shiftcare/internal/gateway"
	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/middleware"
)

func newTokenCmd() *cobra.Command {
	var role, secret string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "デモ利用者のJWTトークンを発行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := issueToken(role, secret)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "ロール（admin / staff）")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT署名鍵（省略時はJWT_SECRETの設定値）")
	return cmd
}

// issueToken はロールに対応するデモ利用者のトークンを発行する。
// secretが空の場合はgatewayの設定から署名鍵を読み込む。
func issueToken(role, secret string) (string, error) {
	id, ok := gateway.DemoIdentity(role)
	if !ok {
		return "", fmt.Errorf("ロールが不正です: %q（admin / staff）", role)
	}
	if secret == "" {
		cfg, err := config.Load("gateway")
		if err != nil {
			return "", err
		}
		secret = cfg.JWTSecret
	}
	return middleware.GenerateJWT(secret, id)
}
