package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"novault/internal/remote"
	"novault/internal/vault"
)

var linkCmd = &cobra.Command{
	Use:   "link <dir> <url>",
	Short: "Configure a remote and push the initial sealed state",
	Long: `link points an already-initialized vault at a remote and performs the
first publish. url is either a git@... SSH URL or a t3://bucket URL for a
Tigris-compatible object store; TigrisS3 additionally prompts for an
access key and secret key, which are recorded in .nov/.s3auth for later
syncs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, url := args[0], args[1]

		if strings.HasPrefix(url, "t3://") {
			access, secret, err := promptS3Credentials()
			if err != nil {
				return err
			}
			if err := remote.WriteCredentials(root, access, secret); err != nil {
				return err
			}
		}

		password, err := passwordForExisting(root)
		if err != nil {
			return err
		}
		defer password.Close()

		if err := vault.Link(context.Background(), root, password, url); err != nil {
			return err
		}

		cmd.Println("linked", root, "to", url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
}

func promptS3Credentials() (accessKey, secretKey string, err error) {
	accessKey, err = readLineSecure("S3 access key: ")
	if err != nil {
		return "", "", err
	}
	secretKey, err = readLineSecure("S3 secret key: ")
	if err != nil {
		return "", "", err
	}
	return accessKey, secretKey, nil
}
