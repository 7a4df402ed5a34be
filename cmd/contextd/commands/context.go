package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brightclass/contextd/internal/logging"
	"github.com/brightclass/contextd/internal/rag"
)

// NewContextCmd constructs the `contextd context` command, which retrieves
// and prints the assembled context for a free-text question.
func NewContextCmd() *cobra.Command {
	var tenantID string
	var subjectID string
	var topK int

	cmd := &cobra.Command{
		Use:   "context <question>",
		Short: "Retrieve assembled context for a question",
		Long: `Embed the question, search the tenant's vector index scoped to the subject,
and print the assembled context block.

Chunks from the same document are grouped together and restored to document
order, so the output reads as coherent passages rather than isolated
fragments. An empty output means no relevant context was found.

Examples:
  contextd context --tenant school1 --subject math "how do I add fractions?"
  contextd context -t school1 -s biology -k 10 "what is osmosis?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenantID == "" || subjectID == "" {
				return fmt.Errorf("context: --tenant and --subject are required")
			}
			query := strings.Join(args, " ")

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}

			router, err := buildRouter(log)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			defer router.Close()

			retriever, err := rag.NewRetriever(emb, router, topK)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}

			out, err := retriever.RetrieveContext(ctx, tenantID, subjectID, query, topK)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}

			if out == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "no relevant context found")
				return nil
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant identifier (required)")
	cmd.Flags().StringVarP(&subjectID, "subject", "s", "", "Subject identifier (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of chunks to retrieve")

	return cmd
}
