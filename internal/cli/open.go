package cli

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"novault/internal/key"
	"novault/internal/vault"
)

var openCmd = &cobra.Command{
	Use:   "open <dir>",
	Short: "Unseal, work interactively, reseal on exit",
	Long: `open unseals dir, then reads single keystrokes from the terminal:

  s            run a synchronization cycle
  q / Ctrl+C   quit and reseal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		password, err := passwordForExisting(root)
		if err != nil {
			return err
		}
		defer password.Close()

		ctx := context.Background()
		if err := vault.Unseal(ctx, root, password); err != nil {
			return err
		}

		cmd.Println("unsealed", root+": press 's' to sync, 'q' to quit and reseal")
		runOpenLoop(ctx, root, password, cmd)

		if err := vault.Seal(ctx, root, password); err != nil {
			return err
		}
		cmd.Println("resealed", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
}

// runOpenLoop reads single keystrokes until it sees 'q', Ctrl+C, the end of
// stdin, or the process receives SIGINT/SIGTERM. It registers a Reporter as
// globalReporter so root.go's signal handler can break the loop even if
// the terminal isn't in raw mode (e.g. stdin is piped).
func runOpenLoop(ctx context.Context, root string, password *key.CachedPassword, cmd *cobra.Command) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := NewReporter(true)
	globalReporter = reporter
	defer func() { globalReporter = nil }()

	if isTerminal() {
		fd := int(syscall.Stdin)
		if oldState, err := term.MakeRaw(fd); err == nil {
			defer term.Restore(fd, oldState)
		}
	}

	keys := make(chan byte, 1)
	go func() {
		defer close(keys)
		reader := bufio.NewReader(os.Stdin)
		buf := make([]byte, 1)
		for {
			n, err := reader.Read(buf)
			if err != nil || n == 0 {
				return
			}
			keys <- buf[0]
		}
	}()

	for {
		select {
		case <-sigCtx.Done():
			return
		case k, ok := <-keys:
			if !ok {
				return
			}
			switch k {
			case 'q', 0x03:
				return
			case 's':
				if err := vault.Sync(ctx, root, password); err != nil {
					cmd.PrintErrln("sync failed:", err)
				} else {
					cmd.Println("synced")
				}
			}
		}

		if reporter.IsCancelled() {
			return
		}
	}
}
