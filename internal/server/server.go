// Package server implements the HTTP server that exposes the ingestion
// pipeline and the retriever as a REST API.
// The server is started by the `contextd serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightclass/contextd/internal/ingestion"
	"github.com/brightclass/contextd/internal/logging"
	"github.com/brightclass/contextd/internal/rag"
)

// New constructs a Server from the provided pipeline, retriever, and config.
// lister may be nil, in which case GET /api/tenants/{tenant}/documents
// returns 501 Not Implemented (catalog disabled).
func New(ing ingestor, ret contextRetriever, lister documentLister, cfg *Config) (*Server, error) {
	if ing == nil {
		return nil, fmt.Errorf("server: ingestor must not be nil")
	}
	if ret == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover ingestion of large uploads.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		ingestor:  ing,
		retriever: ret,
		lister:    lister,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: CONTEXTD_API_KEY not set — API authentication is disabled")
	}

	// Protected API routes: auth + per-IP rate limiting.
	api := http.NewServeMux()
	api.HandleFunc("POST /api/documents", s.instrument("ingest", s.handleIngest))
	api.HandleFunc("GET /api/tenants/{tenant}/documents", s.instrument("documents_list", s.handleListDocuments))
	api.HandleFunc("DELETE /api/tenants/{tenant}/documents/{id}", s.instrument("documents_delete", s.handleDeleteDocument))
	api.HandleFunc("POST /api/context", s.instrument("context", s.handleContext))

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(cfg.APIKey, rl.middleware(api)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the server's root HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleIngest handles POST /api/documents. The request is a multipart form
// with fields "tenantId", "subjectId", and a "file" part. The uploaded file
// is spooled to a temp file, run through the ingestion pipeline, and deleted.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	tenantID := r.FormValue("tenantId")
	subjectID := r.FormValue("subjectId")
	if tenantID == "" || subjectID == "" {
		http.Error(w, "tenantId and subjectId are required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file part is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Spool to disk so the extractors can seek (PDF parsing needs io.ReaderAt).
	// The temp file keeps the upload's extension so extractor selection works.
	tmp, err := os.CreateTemp("", "contextd-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		log.Error("ingest: temp file", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		log.Error("ingest: spooling upload", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := tmp.Close(); err != nil {
		log.Error("ingest: closing temp file", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	docID, err := s.ingestor.Ingest(r.Context(), tmpPath, tenantID, subjectID)
	if err != nil {
		s.metrics.ingestRequestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		log.Error("ingest failed",
			slog.String("tenant_id", tenantID),
			slog.String("source", header.Filename),
			slog.Any("error", err),
		)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ingestion.ErrExtraction):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, rag.ErrStoreUnavailable):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.metrics.ingestRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.ingestDurationSeconds.Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ingestResponse{
		DocumentID: docID,
		TenantID:   tenantID,
		SubjectID:  subjectID,
		Source:     header.Filename,
	})
}

// handleListDocuments handles GET /api/tenants/{tenant}/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.lister == nil {
		http.Error(w, "document catalog is disabled", http.StatusNotImplemented)
		return
	}

	tenantID := r.PathValue("tenant")
	docs, err := s.lister.List(r.Context(), tenantID)
	if err != nil {
		log.Error("list documents failed",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := documentsResponse{TenantID: tenantID, Documents: []documentEntry{}}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentEntry{
			ID:         d.ID,
			SubjectID:  d.SubjectID,
			Source:     d.Source,
			ChunkCount: d.ChunkCount,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleDeleteDocument handles DELETE /api/tenants/{tenant}/documents/{id}.
// Deletion is idempotent, so deleting an unknown id still returns 204.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	tenantID := r.PathValue("tenant")
	documentID := r.PathValue("id")

	if err := s.ingestor.DeleteDocument(r.Context(), tenantID, documentID); err != nil {
		log.Error("delete document failed",
			slog.String("tenant_id", tenantID),
			slog.String("document_id", documentID),
			slog.Any("error", err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleContext handles POST /api/context. It retrieves the top-k chunks for
// the query and returns both the raw chunks and the assembled context string.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.SubjectID == "" || req.Query == "" {
		http.Error(w, "tenantId, subjectId, and query are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	chunks, err := s.retriever.Retrieve(r.Context(), req.TenantID, req.SubjectID, req.Query, req.TopK)
	if err != nil {
		s.metrics.retrievalRequestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		log.Error("retrieval failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("subject_id", req.SubjectID),
			slog.Any("error", err),
		)
		status := http.StatusInternalServerError
		if errors.Is(err, rag.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.metrics.retrievalRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.retrievalDurationSeconds.Observe(time.Since(start).Seconds())

	resp := contextResponse{
		Context: rag.BuildContext(chunks),
		Chunks:  []contextChunk{},
	}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, contextChunk{
			Text:       c.Text,
			DocumentID: c.Metadata.DocumentID,
			ChunkIndex: c.Metadata.ChunkIndex,
			Score:      c.Score,
			Source:     c.Metadata.Extra["source"],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// outcomeLabel maps an error to the metric outcome label.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, rag.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, rag.ErrEmbedding):
		return "embedding"
	case errors.Is(err, ingestion.ErrExtraction):
		return "extraction"
	default:
		return "error"
	}
}
