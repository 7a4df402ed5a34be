package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brightclass/contextd/internal/catalog"
	"github.com/brightclass/contextd/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the size of an uploaded document.
	// Defaults to 32 MiB if zero.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives all Prometheus metrics. If nil a private registry is
	// created, which keeps unit tests hermetic.
	Registry *prometheus.Registry
}

// ingestor is the interface the document handlers call to ingest and delete
// documents. *ingestion.Pipeline satisfies it; tests inject a fake.
type ingestor interface {
	// Ingest processes the file at filePath under the tenant and subject and
	// returns the generated document id.
	Ingest(ctx context.Context, filePath, tenantID, subjectID string) (string, error)
	// DeleteDocument removes every chunk of the document. Idempotent.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}

// contextRetriever is the interface handleContext calls to run a similarity
// search. *rag.Retriever satisfies it; tests inject a fake.
type contextRetriever interface {
	// Retrieve returns the top-k chunks for the query, subject-scoped.
	Retrieve(ctx context.Context, tenantID, subjectID, query string, topK int) ([]rag.Chunk, error)
}

// documentLister is the interface handleListDocuments calls to enumerate a
// tenant's catalog. *catalog.Catalog satisfies it; tests inject a fake.
type documentLister interface {
	// List returns all documents for the tenant, newest first.
	List(ctx context.Context, tenantID string) ([]catalog.Document, error)
}

// Server is the HTTP server that exposes the ingestion pipeline and retriever
// as a REST API.
type Server struct {
	// ingestor handles document ingestion and deletion.
	ingestor ingestor
	// retriever answers context queries.
	retriever contextRetriever
	// lister enumerates a tenant's ingested documents.
	lister documentLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// ingestResponse is the JSON response for POST /api/documents.
type ingestResponse struct {
	// DocumentID is the generated identifier shared by all the document's chunks.
	DocumentID string `json:"documentId"`
	// TenantID is the tenant the document was ingested under.
	TenantID string `json:"tenantId"`
	// SubjectID is the subject the document was ingested under.
	SubjectID string `json:"subjectId"`
	// Source is the uploaded filename.
	Source string `json:"source"`
}

// documentEntry is one element of the GET /api/tenants/{tenant}/documents response.
type documentEntry struct {
	// ID is the document identifier.
	ID string `json:"id"`
	// SubjectID is the subject the document belongs to.
	SubjectID string `json:"subjectId"`
	// Source is the original filename.
	Source string `json:"source"`
	// ChunkCount is the number of chunks the document was split into.
	ChunkCount int `json:"chunkCount"`
	// CreatedAt is the RFC3339 ingestion timestamp.
	CreatedAt string `json:"createdAt"`
}

// documentsResponse is the JSON response for GET /api/tenants/{tenant}/documents.
type documentsResponse struct {
	// TenantID is the tenant that was listed.
	TenantID string `json:"tenantId"`
	// Documents is the tenant's catalog, newest first.
	Documents []documentEntry `json:"documents"`
}

// contextRequest is the JSON body for POST /api/context.
type contextRequest struct {
	// TenantID selects the tenant's isolated index.
	TenantID string `json:"tenantId"`
	// SubjectID restricts results to one subject within the tenant.
	SubjectID string `json:"subjectId"`
	// Query is the free-text question to search for.
	Query string `json:"query"`
	// TopK is the number of chunks to retrieve (0 = server default).
	TopK int `json:"topK,omitempty"`
}

// contextChunk is one retrieved chunk in the POST /api/context response.
type contextChunk struct {
	// Text is the chunk content.
	Text string `json:"text"`
	// DocumentID identifies the source document.
	DocumentID string `json:"documentId"`
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunkIndex"`
	// Score is the similarity score from the vector search.
	Score float32 `json:"score"`
	// Source is the original filename, when known.
	Source string `json:"source,omitempty"`
}

// contextResponse is the JSON response for POST /api/context.
type contextResponse struct {
	// Context is the assembled context string, document-grouped and
	// chunk-ordered. Empty when nothing relevant was found.
	Context string `json:"context"`
	// Chunks is the raw retrieval result backing Context.
	Chunks []contextChunk `json:"chunks"`
}
