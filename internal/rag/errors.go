package rag

import "errors"

var (
	// ErrStoreUnavailable indicates the vector store could not be reached or
	// refused the operation. Surfaced to the caller, never retried here.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrEmbedding indicates the embedding backend failed or returned no
	// usable vector. Retry policy belongs to the caller, not this layer.
	ErrEmbedding = errors.New("embedding failed")
)
