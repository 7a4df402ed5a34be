// Package commands defines all Cobra CLI commands for the contextd binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brightclass/contextd/internal/audit"
	"github.com/brightclass/contextd/internal/config"
	"github.com/brightclass/contextd/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "contextd",
		Short: "contextd — multi-tenant document context retrieval service",
		Long: `contextd ingests course documents into per-tenant vector indexes and
retrieves relevant context for free-text questions.

Documents are extracted, chunked, embedded, and stored in Qdrant with one
isolated collection per tenant. Retrieval embeds the question, searches the
tenant's collection scoped to a subject, and assembles the matching chunks
into a context block ready for downstream use.

The embedding backend is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.contextd/config.yaml).
See 'contextd --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Pick up a local .env first so it participates in the layering.
			// Missing file is the normal case, not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.contextd/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewContextCmd(),
		NewDocumentsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
