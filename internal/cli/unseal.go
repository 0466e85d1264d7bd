package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"novault/internal/vault"
)

var unsealCmd = &cobra.Command{
	Use:   "unseal <dir>",
	Short: "Decrypt vault.bin back onto the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		password, err := passwordForExisting(root)
		if err != nil {
			return err
		}
		defer password.Close()

		// vault.bin is removed as part of unsealing, so its size has to be
		// read before the call, not after.
		size, ok := vaultBinarySize(root)
		start := time.Now()
		if err := vault.Unseal(context.Background(), root, password); err != nil {
			return err
		}

		if ok {
			reportThroughput(NewReporter(false), size, start)
		}
		cmd.Println("unsealed", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unsealCmd)
}
