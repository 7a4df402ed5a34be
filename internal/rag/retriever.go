package rag

import (
	"context"
	"fmt"
)

// Retriever answers similarity queries against a tenant's index by combining
// an Embedder and an IndexRouter. It embeds the query at retrieval time,
// routes to the tenant's collection, and delegates the filtered search to
// the index handle.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// router resolves tenant identifiers to index handles.
	router IndexRouter

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder and IndexRouter.
// defaultTopK sets the fallback result count when Retrieve is called with
// topK=0; it defaults to 5 when non-positive.
func NewRetriever(embedder Embedder, router IndexRouter, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("rag: router must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		embedder:    embedder,
		router:      router,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve returns the top-k chunks for the query from tenantID's index,
// restricted to chunks whose SubjectID matches subjectID exactly. Results
// are ordered by descending similarity. An empty result is valid — callers
// that require at least one match enforce that themselves.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, subjectID, query string, topK int) ([]Chunk, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("rag: tenant id must not be empty")
	}
	if subjectID == "" {
		return nil, fmt.Errorf("rag: subject id must not be empty")
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("rag: %w: empty vector for query", ErrEmbedding)
	}

	index, err := r.router.Index(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("rag: resolving tenant index: %w", err)
	}

	chunks, err := index.Query(ctx, embeddings[0], topK, MetadataFilter{SubjectID: subjectID})
	if err != nil {
		return nil, fmt.Errorf("rag: vector search: %w", err)
	}

	return chunks, nil
}

// RetrieveContext retrieves the top-k chunks for the query and assembles
// them into a single context string (see BuildContext). An empty string
// means no relevant context was found — interpreting that is up to the
// caller, not an error here.
func (r *Retriever) RetrieveContext(ctx context.Context, tenantID, subjectID, query string, topK int) (string, error) {
	chunks, err := r.Retrieve(ctx, tenantID, subjectID, query, topK)
	if err != nil {
		return "", err
	}
	return BuildContext(chunks), nil
}
