// Command askdocs is the entry point for the askdocs document Q&A service.
// It provides a CLI interface (via Cobra) for running the HTTP server and
// for ingesting documents directly from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/askdocs/askdocs-go/cmd/askdocs/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
