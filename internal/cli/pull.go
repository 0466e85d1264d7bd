package cli

import (
	"context"

	"github.com/spf13/cobra"

	"novault/internal/vault"
)

var pullCmd = &cobra.Command{
	Use:   "pull <dir> <url>",
	Short: "Populate an uninitialized directory from a remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, url := args[0], args[1]

		creds := func() (accessKey, secretKey string, err error) {
			return promptS3Credentials()
		}

		if err := vault.Pull(context.Background(), root, url, creds); err != nil {
			return err
		}

		cmd.Println("pulled", root, "from", url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
