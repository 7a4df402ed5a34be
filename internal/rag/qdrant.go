package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
)

// Payload field names used for chunk metadata in Qdrant points.
const (
	payloadText       = "text"
	payloadTenantID   = "tenant_id"
	payloadSubjectID  = "subject_id"
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
)

// collectionSuffix is appended to the sanitised tenant id to form the
// per-tenant collection name.
const collectionSuffix = "_documents"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of the embeddings stored in every
	// tenant collection. Must match the embedder's output size.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantRouter implements IndexRouter backed by a Qdrant instance, mapping
// each tenant to its own collection. Handles are cached for the lifetime of
// the router; creation of a tenant's collection is deduplicated so racing
// first-access callers share a single create-or-open.
type QdrantRouter struct {
	// client is the underlying Qdrant gRPC client, shared by all handles.
	client *qdrant.Client

	// cfg holds the resolved configuration for this router.
	cfg *QdrantConfig

	// mu guards indexes.
	mu sync.RWMutex

	// indexes caches tenant id → opened handle. In-process only; the
	// collections themselves persist in Qdrant across restarts.
	indexes map[string]*qdrantIndex

	// group deduplicates concurrent create-or-open calls per tenant.
	group singleflight.Group

	// ensure creates the named collection if it does not exist. Defaults to
	// ensureCollection; swapped for a stub in tests.
	ensure func(ctx context.Context, name string) error
}

// NewQdrantRouter creates a QdrantRouter from the given config. The
// connection is established eagerly so misconfiguration surfaces at startup;
// tenant collections are only created on first access.
func NewQdrantRouter(cfg *QdrantConfig) (*QdrantRouter, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: creating client: %v", ErrStoreUnavailable, err)
	}

	r := &QdrantRouter{
		client:  client,
		cfg:     cfg,
		indexes: make(map[string]*qdrantIndex),
	}
	r.ensure = r.ensureCollection
	return r, nil
}

// Index returns the cached handle for tenantID, opening or creating the
// tenant's collection on first access. Concurrent first-access callers for
// the same tenant are collapsed into one create-or-open via singleflight;
// different tenants proceed fully independently.
func (r *QdrantRouter) Index(ctx context.Context, tenantID string) (TenantIndex, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("qdrant: tenant id must not be empty")
	}

	r.mu.RLock()
	idx, ok := r.indexes[tenantID]
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		// Re-check under the write path: a racing caller may have won.
		r.mu.RLock()
		idx, ok := r.indexes[tenantID]
		r.mu.RUnlock()
		if ok {
			return idx, nil
		}

		collection := CollectionName(tenantID)
		if err := r.ensure(ctx, collection); err != nil {
			return nil, err
		}

		idx = &qdrantIndex{client: r.client, collection: collection}
		r.mu.Lock()
		r.indexes[tenantID] = idx
		r.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*qdrantIndex), nil
}

// ensureCollection creates the collection if it does not already exist.
// Qdrant treats creation of an existing collection as an error, so existence
// is checked first; the singleflight in Index keeps this race-free within
// the process, and a lost race against another process is tolerated by the
// exists check on retry.
func (r *QdrantRouter) ensureCollection(ctx context.Context, name string) error {
	exists, err := r.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: %w: checking collection %q: %v", ErrStoreUnavailable, name, err)
	}
	if exists {
		return nil
	}

	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     r.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: creating collection %q: %v", ErrStoreUnavailable, name, err)
	}

	return nil
}

// Ping checks Qdrant reachability using its native health-check RPC.
func (r *QdrantRouter) Ping(ctx context.Context) error {
	if _, err := r.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: %w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (r *QdrantRouter) Close() error {
	return r.client.Close()
}

// CollectionName returns the deterministic collection name for a tenant.
// Tenant identifiers are sanitised to lowercase [a-z0-9_-] so arbitrary
// external ids always produce a valid Qdrant collection name, and a short
// digest of the raw id keeps sanitised names distinct: ids like "a.b" and
// "a-b" sanitise identically but must never share a collection.
func CollectionName(tenantID string) string {
	digest := sha256.Sum256([]byte(tenantID))

	var b strings.Builder
	b.Grow(len(tenantID) + 9 + len(collectionSuffix))
	for _, r := range strings.ToLower(tenantID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString(digest[:4]))
	b.WriteString(collectionSuffix)
	return b.String()
}

// qdrantIndex is the TenantIndex handle for a single tenant collection.
type qdrantIndex struct {
	// client is the shared Qdrant gRPC client.
	client *qdrant.Client

	// collection is this tenant's collection name.
	collection string
}

// Upsert stores a batch of chunks with their pre-computed embeddings.
// Point ids are derived deterministically from (document id, chunk index),
// so re-ingesting the same document id overwrites its chunks in place.
func (x *qdrantIndex) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		payload := map[string]any{
			payloadText:       c.Text,
			payloadTenantID:   c.Metadata.TenantID,
			payloadSubjectID:  c.Metadata.SubjectID,
			payloadDocumentID: c.Metadata.DocumentID,
			payloadChunkIndex: int64(c.Metadata.ChunkIndex),
		}
		for k, v := range c.Metadata.Extra {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunkPointID(c.Metadata.DocumentID, c.Metadata.ChunkIndex)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: upsert into %q: %v", ErrStoreUnavailable, x.collection, err)
	}

	return nil
}

// Query performs a cosine similarity search constrained by filter and
// returns up to k chunks ordered by descending similarity.
func (x *qdrantIndex) Query(ctx context.Context, queryEmbedding []float32, k int, filter MetadataFilter) ([]Chunk, error) {
	limit := uint64(k)
	results, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		Filter:         metadataFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: query in %q: %v", ErrStoreUnavailable, x.collection, err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, chunkFromPayload(r.Payload, r.Score))
	}

	return chunks, nil
}

// DeleteDocument removes every point whose document_id payload matches.
// Deleting an unknown id matches zero points — a no-op, not an error.
func (x *qdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("qdrant: document id must not be empty")
	}

	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadDocumentID, documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w: delete document %q from %q: %v", ErrStoreUnavailable, documentID, x.collection, err)
	}

	return nil
}

// metadataFilter converts a MetadataFilter into a Qdrant must-match filter.
// Returns nil when no field is constrained.
func metadataFilter(f MetadataFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.SubjectID != "" {
		must = append(must, qdrant.NewMatch(payloadSubjectID, f.SubjectID))
	}
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch(payloadDocumentID, f.DocumentID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// chunkFromPayload converts a Qdrant point payload back into a Chunk.
// Unknown payload keys are preserved in Metadata.Extra.
func chunkFromPayload(payload map[string]*qdrant.Value, score float32) Chunk {
	c := Chunk{Score: score}
	for k, v := range payload {
		switch k {
		case payloadText:
			c.Text = v.GetStringValue()
		case payloadTenantID:
			c.Metadata.TenantID = v.GetStringValue()
		case payloadSubjectID:
			c.Metadata.SubjectID = v.GetStringValue()
		case payloadDocumentID:
			c.Metadata.DocumentID = v.GetStringValue()
		case payloadChunkIndex:
			c.Metadata.ChunkIndex = int(v.GetIntegerValue())
		default:
			if c.Metadata.Extra == nil {
				c.Metadata.Extra = make(map[string]string)
			}
			c.Metadata.Extra[k] = v.GetStringValue()
		}
	}
	return c
}

// chunkPointID derives a stable UUID for a chunk from its document id and
// position, keeping upserts idempotent per (document, index) pair.
func chunkPointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s#%d", documentID, chunkIndex)).String()
}
