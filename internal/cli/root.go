// Package cli はShiftCareの運用コマンド shiftcarectl を実装する。
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd はサブコマンドを登録したルートコマンドを生成する。
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shiftcarectl",
		Short:         "ShiftCare の運用コマンド",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTokenCmd())
	root.AddCommand(newImportStaffCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute はルートコマンドを実行する。
func Execute() error {
	return NewRootCmd().Execute()
}
