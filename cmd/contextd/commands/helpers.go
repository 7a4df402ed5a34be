package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/brightclass/contextd/internal/catalog"
	"github.com/brightclass/contextd/internal/embedder"
	"github.com/brightclass/contextd/internal/ingestion"
	"github.com/brightclass/contextd/internal/rag"
)

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// buildRouter connects to Qdrant using the QDRANT_* environment variables and
// returns the tenant index router. The vector size follows the configured
// embedding backend so collections are created with matching dimensions.
func buildRouter(log *slog.Logger) (*rag.QdrantRouter, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	vectorSize := uint64(embedder.DefaultDimensions(embedder.Backend())) //nolint:gosec // dimensions are bounded

	router, err := rag.NewQdrantRouter(&rag.QdrantConfig{
		Host:       host,
		Port:       port,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Info("qdrant router ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.Uint64("vector_size", vectorSize),
	)
	return router, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder from environment variables.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embedder.Backend()))
	return emb, nil
}

// openCatalog opens the document catalog. CONTEXTD_CATALOG_DB overrides the
// default path (~/.contextd/catalog.db). Set to "disabled" to run without a
// catalog; a nil Catalog with no error is returned in that case.
func openCatalog(log *slog.Logger) (*catalog.Catalog, error) {
	dbPath := os.Getenv("CONTEXTD_CATALOG_DB")
	if dbPath == "disabled" {
		log.Info("catalog: disabled via CONTEXTD_CATALOG_DB=disabled")
		return nil, nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = catalog.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	c, err := catalog.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog at %s: %w", dbPath, err)
	}
	log.Info("catalog opened", slog.String("path", dbPath))
	return c, nil
}

// buildPipeline assembles the ingestion pipeline from the embedder, router,
// and optional catalog, applying CHUNK_SIZE / CHUNK_OVERLAP / INGEST_WORKERS
// overrides from the environment.
func buildPipeline(emb rag.Embedder, router rag.IndexRouter, cat *catalog.Catalog, log *slog.Logger) (*ingestion.Pipeline, error) {
	cfg := &ingestion.Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
		Workers:      getEnvInt("INGEST_WORKERS", 0),
	}

	opts := []ingestion.Option{ingestion.WithLogger(log)}
	if cat != nil {
		opts = append(opts, ingestion.WithRecorder(cat))
	}

	pipeline, err := ingestion.NewPipeline(emb, router, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return pipeline, nil
}
