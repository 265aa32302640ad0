package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver with FTS5

	"github.com/fieldscope/manualqa/internal/model"
)

// FTS5Keyword is a keyword backend on SQLite FTS5 with WAL mode, which
// allows concurrent readers while an ingestion job writes.
type FTS5Keyword struct {
	db *sql.DB
}

var _ KeywordSearcher = (*FTS5Keyword)(nil)

// NewFTS5Keyword opens (or creates) the FTS database at path.
func NewFTS5Keyword(path string) (*FTS5Keyword, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open fts5 db %s: %w", path, err)
	}
	schema := `
CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
	chunk_id UNINDEXED,
	doc_id UNINDEXED,
	content_text,
	tokenize = 'unicode61'
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fts5 table: %w", err)
	}
	return &FTS5Keyword{db: db}, nil
}

// IndexChunks replaces any existing rows for the chunk ids and inserts
// fresh content inside one transaction.
func (f *FTS5Keyword) IndexChunks(ctx context.Context, chunks []model.Chunk) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM chunk_fts WHERE chunk_id = ?`)
	if err != nil {
		return err
	}
	defer del.Close()
	ins, err := tx.PrepareContext(ctx, `INSERT INTO chunk_fts (chunk_id, doc_id, content_text) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()

	for _, chunk := range chunks {
		if _, err := del.ExecContext(ctx, chunk.ChunkID); err != nil {
			return err
		}
		if _, err := ins.ExecContext(ctx, chunk.ChunkID, chunk.DocID, chunk.ContentText); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteDoc removes all rows of a document.
func (f *FTS5Keyword) DeleteDoc(ctx context.Context, docID string) error {
	_, err := f.db.ExecContext(ctx, `DELETE FROM chunk_fts WHERE doc_id = ?`, docID)
	return err
}

// Search runs an FTS5 match restricted to the caller's chunk set.
// bm25() returns lower-is-better, so the sign is flipped.
func (f *FTS5Keyword) Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error) {
	if len(chunks) == 0 || strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}

	byID := make(map[string]model.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
	}

	rows, err := f.db.QueryContext(ctx,
		`SELECT chunk_id, bm25(chunk_fts) FROM chunk_fts WHERE chunk_fts MATCH ? ORDER BY bm25(chunk_fts) LIMIT ?`,
		ftsQuery(query), topK*4)
	if err != nil {
		return nil, fmt.Errorf("fts5 search: %w", err)
	}
	defer rows.Close()

	var scored []ScoredChunk
	for rows.Next() {
		var chunkID string
		var rank float64
		if err := rows.Scan(&chunkID, &rank); err != nil {
			return nil, err
		}
		chunk, ok := byID[chunkID]
		if !ok {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: -rank, Source: "keyword"})
		if len(scored) >= topK {
			break
		}
	}
	return scored, rows.Err()
}

// ftsQuery quotes each token so FTS5 operators in user text are inert.
func ftsQuery(query string) string {
	terms := bm25Tokens(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Close closes the database.
func (f *FTS5Keyword) Close() error {
	return f.db.Close()
}
