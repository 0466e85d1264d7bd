// Command novault is the CLI front end for the NoVault state machine: a
// directory is init'd, sealed, unsealed, linked to a remote, and
// synchronized through the subcommands below.
package main

import (
	"fmt"
	"os"

	"novault/internal/cli"
)

// version is overwritten at build time via -ldflags.
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "novault:", err)
		os.Exit(1)
	}
}
