package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/brightclass/contextd/internal/catalog"
	"github.com/brightclass/contextd/internal/rag"
)

// stubExtractor returns fixed text for every path.
type stubExtractor struct {
	// text is returned from Extract.
	text string
	// err is returned instead when non-nil.
	err error
}

func (s stubExtractor) Extract(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

// countingEmbedder returns one fixed-size vector per input text and records
// batch sizes. Safe for concurrent use — the pipeline fans batches out.
type countingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, texts)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

// memIndex is an in-memory rag.TenantIndex recording upserts and deletes.
type memIndex struct {
	mu     sync.Mutex
	chunks []rag.Chunk
}

func (m *memIndex) Upsert(_ context.Context, chunks []rag.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks/embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memIndex) Query(_ context.Context, _ []float32, k int, filter rag.MetadataFilter) ([]rag.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rag.Chunk
	for _, c := range m.chunks {
		if filter.SubjectID != "" && c.Metadata.SubjectID != filter.SubjectID {
			continue
		}
		if filter.DocumentID != "" && c.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (m *memIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.Metadata.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

// memRouter maps tenant ids to isolated memIndex instances.
type memRouter struct {
	mu      sync.Mutex
	indexes map[string]*memIndex
}

func newMemRouter() *memRouter {
	return &memRouter{indexes: make(map[string]*memIndex)}
}

func (m *memRouter) Index(_ context.Context, tenantID string) (rag.TenantIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[tenantID]
	if !ok {
		idx = &memIndex{}
		m.indexes[tenantID] = idx
	}
	return idx, nil
}

func (m *memRouter) Close() error { return nil }

// memRecorder is an in-memory Recorder.
type memRecorder struct {
	mu   sync.Mutex
	docs map[string]catalog.Document
}

func newMemRecorder() *memRecorder {
	return &memRecorder{docs: make(map[string]catalog.Document)}
}

func (m *memRecorder) Record(_ context.Context, doc catalog.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memRecorder) Delete(_ context.Context, _, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

// newTestPipeline builds a pipeline over the given text with small chunks so
// multi-chunk behaviour is easy to trigger.
func newTestPipeline(t *testing.T, text string, cfg *Config) (*Pipeline, *memRouter, *memRecorder) {
	t.Helper()
	router := newMemRouter()
	recorder := newMemRecorder()
	p, err := NewPipeline(&countingEmbedder{}, router, cfg,
		WithExtractor(stubExtractor{text: text}),
		WithRecorder(recorder),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	t.Cleanup(p.Close)
	return p, router, recorder
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := chunkText("hello world", 800, 200)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("expected verbatim text, got %q", chunks[0])
	}
}

func TestChunkText_EmptyAndWhitespace(t *testing.T) {
	t.Parallel()

	if got := chunkText("", 800, 200); got != nil {
		t.Errorf("empty text: expected nil, got %v", got)
	}
	if got := chunkText("   \n\t  ", 800, 200); got != nil {
		t.Errorf("whitespace text: expected nil, got %v", got)
	}
}

func TestChunkText_OverlapSharedAtBoundary(t *testing.T) {
	t.Parallel()

	// Text longer than size+overlap must yield at least two chunks whose
	// boundary region appears in both.
	text := strings.Repeat("abcdefghij", 30) // 300 runes
	chunks := chunkText(text, 100, 40)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i := range len(chunks) - 1 {
		tail := chunks[i][len(chunks[i])-40:]
		head := chunks[i+1][:40]
		if tail != head {
			t.Errorf("chunks %d/%d do not share overlap: %q vs %q", i, i+1, tail, head)
		}
	}
}

func TestChunkText_RespectsTargetSize(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 1000)
	chunks := chunkText(text, 100, 20)

	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk %d exceeds target size: %d runes", i, len([]rune(c)))
		}
	}
}

func TestChunkText_RuneSafe(t *testing.T) {
	t.Parallel()

	// Multi-byte characters must never be split mid-rune.
	text := strings.Repeat("日本語のテキスト", 50)
	chunks := chunkText(text, 100, 30)

	for i, c := range chunks {
		if !strings.Contains(text, c) {
			t.Errorf("chunk %d is not a clean substring (broken rune?)", i)
		}
	}
}

func TestIngest_TagsChunksWithSequentialIndexes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("lesson material ", 100) // ~1600 runes → several chunks
	p, router, _ := newTestPipeline(t, text, &Config{ChunkSize: 300, ChunkOverlap: 50})

	docID, err := p.Ingest(context.Background(), "/tmp/lesson.txt", "school1", "math")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if docID == "" {
		t.Fatal("expected non-empty document id")
	}

	idx := router.indexes["school1"]
	if idx == nil {
		t.Fatal("no index created for school1")
	}
	if len(idx.chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(idx.chunks))
	}
	for i, c := range idx.chunks {
		m := c.Metadata
		if m.ChunkIndex != i {
			t.Errorf("chunk %d: index %d out of sequence", i, m.ChunkIndex)
		}
		if m.TenantID != "school1" || m.SubjectID != "math" || m.DocumentID != docID {
			t.Errorf("chunk %d: wrong metadata %+v", i, m)
		}
		if m.Extra["source"] != "lesson.txt" {
			t.Errorf("chunk %d: missing source metadata: %+v", i, m.Extra)
		}
	}
}

func TestIngest_RecordsCatalogEntry(t *testing.T) {
	t.Parallel()

	p, _, recorder := newTestPipeline(t, "short document", nil)

	docID, err := p.Ingest(context.Background(), "/tmp/notes.md", "school1", "science")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	rec, ok := recorder.docs[docID]
	if !ok {
		t.Fatal("expected catalog record for ingested document")
	}
	if rec.TenantID != "school1" || rec.SubjectID != "science" || rec.Source != "notes.md" || rec.ChunkCount != 1 {
		t.Errorf("unexpected catalog record: %+v", rec)
	}
}

func TestIngest_ValidatesIdentifiers(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, "text", nil)

	if _, err := p.Ingest(context.Background(), "/tmp/a.txt", "", "math"); err == nil {
		t.Error("expected error for empty tenant id")
	}
	if _, err := p.Ingest(context.Background(), "/tmp/a.txt", "school1", ""); err == nil {
		t.Error("expected error for empty subject id")
	}
}

func TestIngest_ExtractionErrorPropagates(t *testing.T) {
	t.Parallel()

	router := newMemRouter()
	p, err := NewPipeline(&countingEmbedder{}, router, nil,
		WithExtractor(stubExtractor{err: fmt.Errorf("%w: corrupt file", ErrExtraction)}),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	_, err = p.Ingest(context.Background(), "/tmp/bad.pdf", "school1", "math")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}

func TestIngest_EmptyDocumentIsExtractionError(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, "   ", nil)

	_, err := p.Ingest(context.Background(), "/tmp/empty.txt", "school1", "math")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("expected ErrExtraction for empty document, got %v", err)
	}
}

func TestIngest_EmbeddingErrorPropagates(t *testing.T) {
	t.Parallel()

	router := newMemRouter()
	emb := &countingEmbedder{err: fmt.Errorf("%w: model offline", rag.ErrEmbedding)}
	p, err := NewPipeline(emb, router, nil, WithExtractor(stubExtractor{text: "some text"}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	_, err = p.Ingest(context.Background(), "/tmp/a.txt", "school1", "math")
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}

	// Nothing may be stored when embedding fails.
	idx, _ := router.Index(context.Background(), "school1")
	if n := len(idx.(*memIndex).chunks); n != 0 {
		t.Errorf("expected no chunks stored after embed failure, got %d", n)
	}
}

func TestIngest_BatchFanOutPreservesOrder(t *testing.T) {
	t.Parallel()

	// Force many small batches across multiple workers.
	text := strings.Repeat("0123456789", 200) // 2000 runes
	router := newMemRouter()
	emb := &countingEmbedder{}
	p, err := NewPipeline(emb, router, &Config{ChunkSize: 100, ChunkOverlap: 0, EmbedBatchSize: 2, Workers: 4},
		WithExtractor(stubExtractor{text: text}),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	docID, err := p.Ingest(context.Background(), "/tmp/big.txt", "school1", "math")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	idx := router.indexes["school1"]
	if len(idx.chunks) != 20 {
		t.Fatalf("expected 20 chunks, got %d", len(idx.chunks))
	}
	if len(emb.batches) != 10 {
		t.Errorf("expected 10 embed batches, got %d", len(emb.batches))
	}
	for i, c := range idx.chunks {
		if c.Metadata.ChunkIndex != i || c.Metadata.DocumentID != docID {
			t.Errorf("chunk %d: metadata out of order: %+v", i, c.Metadata)
		}
	}
}

func TestDeleteDocument_Idempotent(t *testing.T) {
	t.Parallel()

	p, router, recorder := newTestPipeline(t, "some document text", nil)
	ctx := context.Background()

	docID, err := p.Ingest(ctx, "/tmp/doc.txt", "school1", "math")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := p.DeleteDocument(ctx, "school1", docID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := p.DeleteDocument(ctx, "school1", docID); err != nil {
		t.Fatalf("second delete must be a no-op, got: %v", err)
	}

	if n := len(router.indexes["school1"].chunks); n != 0 {
		t.Errorf("expected 0 chunks after delete, got %d", n)
	}
	if _, ok := recorder.docs[docID]; ok {
		t.Error("catalog record not removed on delete")
	}
}

func TestDeleteDocument_UnknownIDIsNoOp(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, "text", nil)

	if err := p.DeleteDocument(context.Background(), "school1", "never-ingested"); err != nil {
		t.Errorf("deleting unknown document must not error, got: %v", err)
	}
}
