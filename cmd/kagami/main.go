// Command kagami finds the reference images most similar to a query image.
package main

import (
	"fmt"
	"os"

	"github.com/hyperjump/kagami/cmd/kagami/commands"
)

// Version information (set by the release build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if code, ok := commands.ExitCode(err); ok {
		return code
	}
	return 1
}
