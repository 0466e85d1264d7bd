// Package cli is the command-line front end for novault: it wires
// cobra subcommands to internal/vault, handling password prompting,
// the novpwd environment fallback, and signal-driven cancellation of
// the interactive open loop.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set by main.go.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "novault",
	Short: "Seal a directory into an encrypted vault, sync it anywhere",
	Long: `novault turns a directory into a sealed, encrypted vault that can be
synchronized through a Git remote or an S3-compatible bucket:

  novault init   <dir>          start a fresh vault, sealed
  novault unseal <dir>          decrypt it back onto the working tree
  novault seal   <dir>          encrypt the working tree away again
  novault link   <dir> <url>    configure and push to a remote
  novault sync   <dir>          push the current sealed state
  novault pull   <dir> <url>    populate an empty dir from a remote
  novault open   <dir>          unseal, work interactively, reseal on exit`,
	Version:           Version,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

// globalReporter receives Ctrl+C/SIGTERM during the open loop so it can
// break out cleanly and reseal before exiting.
var globalReporter *Reporter

// Execute runs the CLI, returning any command error rather than calling
// os.Exit itself.
func Execute(version string) error {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if globalReporter != nil {
			// open's interactive loop polls IsCancelled and reseals itself.
			globalReporter.Cancel()
			return
		}
		fmt.Fprintln(os.Stderr, "\ninterrupted")
		os.Exit(130)
	}()

	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
