// Package main provides the entry point for the Legion CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gemini-legion/legion/cmd/legion/commands"
	"github.com/gemini-legion/legion/internal/legionerr"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if kind, ok := legionerr.As(err); ok {
			os.Exit(kind.ExitCode())
		}
		os.Exit(legionerr.ExitInternal)
	}
}
