package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"novault/internal/vault"
)

var sealCmd = &cobra.Command{
	Use:   "seal <dir>",
	Short: "Encrypt the working tree back into vault.bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		password, err := passwordForExisting(root)
		if err != nil {
			return err
		}
		defer password.Close()

		start := time.Now()
		if err := vault.Seal(context.Background(), root, password); err != nil {
			return err
		}

		if size, ok := vaultBinarySize(root); ok {
			reportThroughput(NewReporter(false), size, start)
		}
		cmd.Println("sealed", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sealCmd)
}
