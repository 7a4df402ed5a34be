package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brightclass/contextd/internal/logging"
)

// NewIngestCmd constructs the `contextd ingest` command, which runs a file
// through the ingestion pipeline into the tenant's vector index.
func NewIngestCmd() *cobra.Command {
	var tenantID string
	var subjectID string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into a tenant's vector index",
		Long: `Extract, chunk, embed, and index one or more documents for a tenant.

Supported formats: PDF (.pdf) and plain text (.txt, .md, .markdown).
Each document receives a generated id, printed on success, which is needed
to delete the document later.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (model, dimensions, endpoint)

Examples:
  contextd ingest --tenant school1 --subject math syllabus.pdf
  contextd ingest -t school1 -s biology notes.md chapter2.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenantID == "" || subjectID == "" {
				return fmt.Errorf("ingest: --tenant and --subject are required")
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			router, err := buildRouter(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer router.Close()

			cat, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if cat != nil {
				defer cat.Close()
			}

			pipeline, err := buildPipeline(emb, router, cat, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer pipeline.Close()

			for _, path := range args {
				docID, err := pipeline.Ingest(ctx, path, tenantID, subjectID)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				log.Info("ingested",
					slog.String("file", path),
					slog.String("document_id", docID),
				)
				fmt.Printf("%s\t%s\n", docID, path)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant identifier (required)")
	cmd.Flags().StringVarP(&subjectID, "subject", "s", "", "Subject identifier (required)")

	return cmd
}
