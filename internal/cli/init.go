package cli

import (
	"context"

	"github.com/spf13/cobra"

	"novault/internal/vault"
)

var initCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Initialize a new sealed vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		password, err := passwordForInit()
		if err != nil {
			return err
		}
		defer password.Close()

		if err := vault.Init(context.Background(), root, password); err != nil {
			return err
		}

		cmd.Println("initialized and sealed", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
