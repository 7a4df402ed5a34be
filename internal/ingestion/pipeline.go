// Package ingestion implements the document ingestion pipeline.
// It extracts text from an uploaded document, splits it into overlapping
// chunks tagged with tenant/subject/document metadata, embeds the chunks,
// and upserts them into the tenant's vector index. The pipeline is invoked
// by the `contextd ingest` CLI command and the POST /api/documents handler.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/brightclass/contextd/internal/catalog"
	"github.com/brightclass/contextd/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the target number of characters (runes) per chunk.
	// Defaults to 800 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks, so semantic boundaries split across a chunk edge are still
	// captured in an adjacent chunk. Defaults to 200 if zero.
	ChunkOverlap int

	// EmbedBatchSize is the number of chunks sent to the embedder per call.
	// Defaults to 64 if zero.
	EmbedBatchSize int

	// Workers is the size of the worker pool used to embed batches of the
	// same document concurrently. Defaults to half the CPUs, minimum 1.
	Workers int
}

// Recorder receives one catalog entry per ingested document. Implemented by
// *catalog.Catalog; tests inject a fake.
type Recorder interface {
	// Record persists one document row.
	Record(ctx context.Context, doc catalog.Document) error
	// Delete removes the document row; no-op when the row does not exist.
	Delete(ctx context.Context, tenantID, documentID string) error
}

// Pipeline orchestrates the extract → chunk → embed → upsert flow for one
// document at a time. It is safe for concurrent use across documents.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// router resolves tenant identifiers to vector index handles.
	router rag.IndexRouter

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// pool runs embedding batches concurrently, bounded by cfg.Workers.
	pool *ants.Pool

	// extractor overrides format-based extractor selection when non-nil.
	extractor Extractor

	// recorder receives catalog entries; nil disables the catalog.
	recorder Recorder

	// log is the structured logger for pipeline events.
	log *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor forces a specific Extractor instead of selecting one from
// the file extension.
func WithExtractor(ex Extractor) Option {
	return func(p *Pipeline) { p.extractor = ex }
}

// WithRecorder wires a document catalog into the pipeline.
func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, router rag.IndexRouter, cfg *Config, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("ingestion: router must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() / 2
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("ingestion: creating worker pool: %w", err)
	}

	p := &Pipeline{
		embedder: embedder,
		router:   router,
		cfg:      cfg,
		pool:     pool,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close releases the embedding worker pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// Ingest extracts, chunks, embeds, and stores the document at filePath under
// the given tenant and subject. It returns the generated document id so the
// caller can reference the document later (e.g. for deletion).
//
// Failures are not retried here: extraction problems wrap ErrExtraction,
// embedding problems wrap rag.ErrEmbedding, and store problems wrap
// rag.ErrStoreUnavailable — retry policy belongs to the caller.
func (p *Pipeline) Ingest(ctx context.Context, filePath, tenantID, subjectID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("ingestion: tenant id must not be empty")
	}
	if subjectID == "" {
		return "", fmt.Errorf("ingestion: subject id must not be empty")
	}

	extractor := p.extractor
	if extractor == nil {
		var err error
		extractor, err = ForFile(filePath)
		if err != nil {
			return "", err
		}
	}

	text, err := extractor.Extract(ctx, filePath)
	if err != nil {
		return "", err
	}

	texts := chunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(texts) == 0 {
		return "", fmt.Errorf("ingestion: %w: no extractable text in %s", ErrExtraction, filePath)
	}

	documentID := uuid.NewString()
	source := filepath.Base(filePath)

	chunks := make([]rag.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = rag.Chunk{
			Text: t,
			Metadata: rag.ChunkMetadata{
				TenantID:   tenantID,
				SubjectID:  subjectID,
				DocumentID: documentID,
				ChunkIndex: i,
				Extra:      map[string]string{"source": source},
			},
		}
	}

	embeddings, err := p.embedAll(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("ingestion: embedding %s: %w", source, err)
	}

	index, err := p.router.Index(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("ingestion: resolving tenant index: %w", err)
	}
	if err := index.Upsert(ctx, chunks, embeddings); err != nil {
		return "", fmt.Errorf("ingestion: storing %s: %w", source, err)
	}

	if p.recorder != nil {
		rec := catalog.Document{
			ID:         documentID,
			TenantID:   tenantID,
			SubjectID:  subjectID,
			Source:     source,
			ChunkCount: len(chunks),
		}
		// The chunks are already stored — a catalog failure degrades listing,
		// not retrieval, so log and continue.
		if err := p.recorder.Record(ctx, rec); err != nil {
			p.log.Warn("ingestion: catalog record failed",
				slog.String("document_id", documentID),
				slog.Any("error", err),
			)
		}
	}

	p.log.Info("document ingested",
		slog.String("tenant_id", tenantID),
		slog.String("subject_id", subjectID),
		slog.String("document_id", documentID),
		slog.String("source", source),
		slog.Int("chunks", len(chunks)),
	)

	return documentID, nil
}

// DeleteDocument removes every chunk of the document from the tenant's index
// and drops its catalog row. Idempotent: deleting an id that was never
// ingested (or was already deleted) succeeds without error.
func (p *Pipeline) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return fmt.Errorf("ingestion: tenant id must not be empty")
	}
	if documentID == "" {
		return fmt.Errorf("ingestion: document id must not be empty")
	}

	index, err := p.router.Index(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("ingestion: resolving tenant index: %w", err)
	}
	if err := index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("ingestion: deleting document %s: %w", documentID, err)
	}

	if p.recorder != nil {
		if err := p.recorder.Delete(ctx, tenantID, documentID); err != nil {
			p.log.Warn("ingestion: catalog delete failed",
				slog.String("document_id", documentID),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

// embedAll embeds all chunk texts, fanning batches out across the worker
// pool. Each batch writes its vectors to a fixed offset in the result slice,
// so ordering is restored by position rather than completion order.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(texts))
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			vecs, err := p.embedder.Embed(ctx, b.texts)
			if err != nil {
				errs[i] = err
				return
			}
			if len(vecs) != len(b.texts) {
				errs[i] = fmt.Errorf("%w: expected %d vectors, got %d", rag.ErrEmbedding, len(b.texts), len(vecs))
				return
			}
			copy(out[b.start:], vecs)
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submitting embed batch: %w", err)
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for chunk %d", rag.ErrEmbedding, i)
		}
	}

	return out, nil
}

// chunkText splits text into overlapping chunks of size runes, consecutive
// chunks sharing overlap runes at the boundary. Splitting on runes rather
// than bytes keeps multi-byte characters intact.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
