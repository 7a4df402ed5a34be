package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightclass/contextd/internal/logging"
)

// NewDocumentsCmd constructs the `contextd documents` command group for
// listing and deleting a tenant's ingested documents.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List and delete a tenant's ingested documents",
	}

	cmd.AddCommand(
		newDocumentsListCmd(),
		newDocumentsDeleteCmd(),
	)

	return cmd
}

// newDocumentsListCmd constructs `contextd documents list`.
func newDocumentsListCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's documents from the catalog",
		Long: `Print the tenant's ingested documents, newest first.

The listing comes from the local document catalog, so only documents ingested
through this host appear. Requires the catalog to be enabled.

Example:
  contextd documents list --tenant school1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()

			if tenantID == "" {
				return fmt.Errorf("documents list: --tenant is required")
			}

			cat, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("documents list: %w", err)
			}
			if cat == nil {
				return fmt.Errorf("documents list: catalog is disabled (CONTEXTD_CATALOG_DB=disabled)")
			}
			defer cat.Close()

			docs, err := cat.List(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("documents list: %w", err)
			}

			if len(docs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no documents found")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSUBJECT\tSOURCE\tCHUNKS\tINGESTED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					d.ID, d.SubjectID, d.Source, d.ChunkCount,
					d.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant identifier (required)")

	return cmd
}

// newDocumentsDeleteCmd constructs `contextd documents delete`.
func newDocumentsDeleteCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Delete documents from a tenant's index",
		Long: `Remove every chunk of the given documents from the tenant's vector index
and drop their catalog rows.

Deletion is idempotent: deleting an id that was never ingested (or was
already deleted) succeeds without error.

Example:
  contextd documents delete --tenant school1 2f1c9a6e-...-d41d`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenantID == "" {
				return fmt.Errorf("documents delete: --tenant is required")
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}

			router, err := buildRouter(log)
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			defer router.Close()

			cat, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			if cat != nil {
				defer cat.Close()
			}

			pipeline, err := buildPipeline(emb, router, cat, log)
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			defer pipeline.Close()

			for _, docID := range args {
				if err := pipeline.DeleteDocument(ctx, tenantID, docID); err != nil {
					return fmt.Errorf("documents delete: %s: %w", docID, err)
				}
				fmt.Printf("deleted %s\n", docID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant identifier (required)")

	return cmd
}
