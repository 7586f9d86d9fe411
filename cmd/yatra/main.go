// Command yatra records pilgrim checkpoint scans on an often-offline device
// and keeps it in sync with the central record store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/yatra/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
