// Package catalog provides a SQLite-backed registry of ingested documents.
// The vector store owns the chunks themselves; the catalog records one row
// per document (tenant, subject, source filename, chunk count) so operators
// can list a tenant's documents and deletions can be audited.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Document is one catalog row describing an ingested document.
type Document struct {
	// ID is the document's unique identifier, shared by all its chunks.
	ID string
	// TenantID is the tenant that owns the document.
	TenantID string
	// SubjectID is the subject the document was ingested under.
	SubjectID string
	// Source is the original filename, kept for operator display only.
	Source string
	// ChunkCount is the number of chunks the document was split into.
	ChunkCount int
	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// Catalog is a document registry backed by a local SQLite database.
type Catalog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the document catalog database.
// It resolves to ~/.contextd/catalog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("catalog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".contextd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("catalog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Open opens (or creates) a Catalog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Catalog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// migrate creates the schema if it does not already exist.
func (c *Catalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    tenant_id    TEXT    NOT NULL,
    subject_id   TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_documents_tenant_created
    ON documents (tenant_id, created_at);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Record persists one document row. Re-recording an existing id replaces the
// row, mirroring the vector store's overwrite-on-reingest behaviour.
func (c *Catalog) Record(ctx context.Context, doc Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	const q = `
INSERT OR REPLACE INTO documents (id, tenant_id, subject_id, source, chunk_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.TenantID, doc.SubjectID, doc.Source, doc.ChunkCount, doc.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("catalog: record: %w", err)
	}
	return nil
}

// List returns all documents for the tenant, newest first.
func (c *Catalog) List(ctx context.Context, tenantID string) ([]Document, error) {
	const q = `
SELECT id, tenant_id, subject_id, source, chunk_count, created_at
FROM   documents
WHERE  tenant_id = ?
ORDER  BY created_at DESC, id`

	rows, err := c.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubjectID, &d.Source, &d.ChunkCount, &ts); err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		d.CreatedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	return docs, nil
}

// Delete removes the document row for (tenantID, documentID).
// Idempotent: deleting a missing row is a no-op, not an error.
func (c *Catalog) Delete(ctx context.Context, tenantID, documentID string) error {
	const q = `DELETE FROM documents WHERE tenant_id = ? AND id = ?`
	if _, err := c.db.ExecContext(ctx, q, tenantID, documentID); err != nil {
		return fmt.Errorf("catalog: delete: %w", err)
	}
	return nil
}

// Ping verifies the database file is still reachable and writable enough for
// a readiness probe.
func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog: ping: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
