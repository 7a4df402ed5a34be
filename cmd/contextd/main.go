// Command contextd is the entry point for the contextd retrieval service.
// It provides a CLI interface (via Cobra) for ingesting documents and
// querying context, and an HTTP server for multi-tenant API access.
package main

import (
	"fmt"
	"os"

	"github.com/brightclass/contextd/cmd/contextd/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
