package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brightclass/contextd/internal/logging"
	"github.com/brightclass/contextd/internal/rag"
	"github.com/brightclass/contextd/internal/server"
)

// NewServeCmd constructs the `contextd serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the contextd HTTP API server",
		Long: `Start the contextd HTTP server.

The server exposes:
  POST   /api/documents                           multipart document upload
  GET    /api/tenants/{tenant}/documents          list a tenant's documents
  DELETE /api/tenants/{tenant}/documents/{id}     delete a document
  POST   /api/context                             retrieve assembled context
  GET    /api/health                              liveness probe
  GET    /api/ready                               readiness probe (Qdrant, catalog)
  GET    /metrics                                 Prometheus metrics

Set CONTEXTD_API_KEY to require Bearer token authentication on the
/api/documents, /api/tenants, and /api/context routes.

Examples:
  contextd serve
  contextd serve --port 9090
  EMBEDDING_PROVIDER=openai contextd serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			router, err := buildRouter(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer router.Close()

			cat, err := openCatalog(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if cat != nil {
				defer cat.Close()
			}

			pipeline, err := buildPipeline(emb, router, cat, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer pipeline.Close()

			retriever, err := rag.NewRetriever(emb, router, getEnvInt("RETRIEVAL_TOP_K", 5))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewDependencyPinger(router, "qdrant"),
			}
			if cat != nil {
				pingers = append(pingers, server.NewDependencyPinger(cat, "catalog"))
			}

			// The catalog is optional; pass a typed nil only when enabled.
			var srv *server.Server
			if cat != nil {
				srv, err = server.New(pipeline, retriever, cat, &server.Config{
					Host:    host,
					Port:    port,
					Logger:  log,
					Pingers: pingers,
					APIKey:  os.Getenv("CONTEXTD_API_KEY"),
				})
			} else {
				srv, err = server.New(pipeline, retriever, nil, &server.Config{
					Host:    host,
					Port:    port,
					Logger:  log,
					Pingers: pingers,
					APIKey:  os.Getenv("CONTEXTD_API_KEY"),
				})
			}
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
