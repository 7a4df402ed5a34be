// Package rag defines the interfaces and data model for the context
// retrieval pipeline: per-tenant vector indexes, query-time retrieval, and
// context assembly. Concrete implementations (Qdrant, etc.) satisfy these
// interfaces so the ingestion and serving layers never depend on a specific
// backend.
package rag

import (
	"context"
)

// ChunkMetadata identifies where a chunk came from and where it belongs in
// its source document. The four required fields are structured; anything
// optional goes into Extra so new attributes never break the typed surface.
type ChunkMetadata struct {
	// TenantID is the isolation boundary (e.g. a school or organisation).
	// Chunks from one tenant must never be visible to another.
	TenantID string

	// SubjectID scopes the chunk within a tenant (e.g. "math", "biology").
	// Retrieval filters on this field with exact-match equality.
	SubjectID string

	// DocumentID is the opaque unique identifier of the source document,
	// shared by every chunk split from it.
	DocumentID string

	// ChunkIndex is the zero-based position of this chunk within the source
	// document, used to restore original order during context assembly.
	ChunkIndex int

	// Extra holds optional metadata (e.g. "source" filename). May be nil.
	Extra map[string]string
}

// Chunk is a bounded span of text extracted from a source document — the
// unit of embedding, storage, and retrieval.
type Chunk struct {
	// Text is the raw text content of the chunk.
	Text string

	// Metadata identifies the chunk's tenant, subject, document, and position.
	Metadata ChunkMetadata

	// Score is the similarity score assigned during retrieval. Only the
	// relative order of scores is part of the contract; the zero value means
	// the score was not computed (e.g. on ingestion).
	Score float32
}

// MetadataFilter restricts a similarity query or a delete to chunks whose
// metadata matches every non-empty field with exact equality.
type MetadataFilter struct {
	// SubjectID restricts to chunks with this subject. Empty = no constraint.
	SubjectID string

	// DocumentID restricts to chunks of this document. Empty = no constraint.
	DocumentID string
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice. Fails with an error
	// wrapping ErrEmbedding when the backend returns no usable vectors.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TenantIndex is a handle to one tenant's isolated, similarity-searchable
// chunk collection. Handles are obtained from an IndexRouter and must be
// safe to call from multiple goroutines.
type TenantIndex interface {
	// Upsert stores a batch of chunks with their pre-computed embeddings.
	// The embeddings slice must be parallel to chunks — embeddings[i] is the
	// vector for chunks[i]. Re-upserting the same document and chunk index
	// overwrites rather than duplicates.
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Query performs a similarity search constrained by filter and returns
	// up to k chunks ordered by descending similarity. An empty result is
	// valid, not an error.
	Query(ctx context.Context, queryEmbedding []float32, k int, filter MetadataFilter) ([]Chunk, error)

	// DeleteDocument removes every chunk whose DocumentID matches.
	// Idempotent: deleting a non-existent document is a no-op.
	DeleteDocument(ctx context.Context, documentID string) error
}

// IndexRouter maps a tenant identifier to that tenant's TenantIndex, lazily
// creating the underlying collection on first access and caching the handle
// for the lifetime of the process. Implementations must be safe to call from
// multiple goroutines.
type IndexRouter interface {
	// Index returns the (possibly newly created) index handle for tenantID.
	// Fails with an error wrapping ErrStoreUnavailable when the backing
	// store cannot be reached.
	Index(ctx context.Context, tenantID string) (TenantIndex, error)

	// Close releases any resources held by the router and its handles.
	Close() error
}
