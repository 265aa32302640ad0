package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/fieldscope/manualqa/internal/model"
)

// CatalogStore records ingested documents and their ingestion stats in
// SQLite so surfaces can answer "what is indexed" without scanning the
// assets directory.
type CatalogStore struct {
	db *sql.DB
}

// DocumentRecord is one catalog row.
type DocumentRecord struct {
	DocID        string
	Title        string
	Filename     string
	PageCount    int
	ChunkCount   int
	Coverage     float64
	IngestedAt   time.Time
	ContractVer  string
	VisualChunks int
}

// NewCatalogStore opens (or creates) the catalog database at path.
func NewCatalogStore(path string) (*CatalogStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db %s: %w", path, err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	doc_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	coverage REAL NOT NULL DEFAULT 0,
	ingested_at TEXT NOT NULL,
	contract_version TEXT NOT NULL DEFAULT '',
	visual_chunks INTEGER NOT NULL DEFAULT 0
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &CatalogStore{db: db}, nil
}

// Upsert inserts or replaces a document record.
func (c *CatalogStore) Upsert(ctx context.Context, rec DocumentRecord) error {
	if rec.DocID == "" {
		return fmt.Errorf("doc_id is required")
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO documents (doc_id, title, filename, page_count, chunk_count, coverage, ingested_at, contract_version, visual_chunks)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET
	title = excluded.title,
	filename = excluded.filename,
	page_count = excluded.page_count,
	chunk_count = excluded.chunk_count,
	coverage = excluded.coverage,
	ingested_at = excluded.ingested_at,
	contract_version = excluded.contract_version,
	visual_chunks = excluded.visual_chunks`,
		rec.DocID, rec.Title, rec.Filename, rec.PageCount, rec.ChunkCount,
		rec.Coverage, rec.IngestedAt.Format(time.RFC3339), rec.ContractVer, rec.VisualChunks)
	return err
}

// Get fetches one record. Returns sql.ErrNoRows when absent.
func (c *CatalogStore) Get(ctx context.Context, docID string) (DocumentRecord, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT doc_id, title, filename, page_count, chunk_count, coverage, ingested_at, contract_version, visual_chunks
FROM documents WHERE doc_id = ?`, docID)
	return scanDocument(row)
}

// List returns all records ordered by doc id.
func (c *CatalogStore) List(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT doc_id, title, filename, page_count, chunk_count, coverage, ingested_at, contract_version, visual_chunks
FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record.
func (c *CatalogStore) Delete(ctx context.Context, docID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	return err
}

// Documents returns the catalog as domain documents.
func (c *CatalogStore) Documents(ctx context.Context) ([]model.Document, error) {
	recs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, model.Document{DocID: rec.DocID, Title: rec.Title, Filename: rec.Filename})
	}
	return docs, nil
}

// Close closes the database.
func (c *CatalogStore) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (DocumentRecord, error) {
	var rec DocumentRecord
	var ingestedAt string
	err := row.Scan(&rec.DocID, &rec.Title, &rec.Filename, &rec.PageCount,
		&rec.ChunkCount, &rec.Coverage, &ingestedAt, &rec.ContractVer, &rec.VisualChunks)
	if err != nil {
		return rec, err
	}
	if t, perr := time.Parse(time.RFC3339, ingestedAt); perr == nil {
		rec.IngestedAt = t
	}
	return rec, nil
}
