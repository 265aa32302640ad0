package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/fieldscope/manualqa/internal/model"
)

// bleveDoc is the indexed representation of a chunk.
type bleveDoc struct {
	ContentText string `json:"content_text"`
	DocID       string `json:"doc_id"`
	ContentType string `json:"content_type"`
}

// BleveKeyword is a persistent keyword index backed by bleve. The index
// lives under <indexDir>/bm25.bleve and survives restarts; Search
// restricts results to the chunk set the caller passes in, so document
// filters behave identically to the in-memory backend.
type BleveKeyword struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

var _ KeywordSearcher = (*BleveKeyword)(nil)

// NewBleveKeyword opens or creates the index at path.
func NewBleveKeyword(path string) (*BleveKeyword, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildChunkMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %s: %w", path, err)
	}
	return &BleveKeyword{index: index, path: path}, nil
}

func buildChunkMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false

	keywordField := bleve.NewKeywordFieldMapping()
	keywordField.Store = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content_text", textField)
	docMapping.AddFieldMappingsAt("doc_id", keywordField)
	docMapping.AddFieldMappingsAt("content_type", keywordField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	m.DefaultAnalyzer = standard.Name
	return m
}

// IndexChunks adds or replaces chunks in the index in one batch.
func (b *BleveKeyword) IndexChunks(ctx context.Context, chunks []model.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := bleveDoc{
			ContentText: chunk.ContentText,
			DocID:       chunk.DocID,
			ContentType: string(chunk.ContentType),
		}
		if err := batch.Index(chunk.ChunkID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", chunk.ChunkID, err)
		}
	}
	return b.index.Batch(batch)
}

// DeleteDoc removes all chunks of a document from the index.
func (b *BleveKeyword) DeleteDoc(ctx context.Context, docID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	query := bleve.NewTermQuery(docID)
	query.SetField("doc_id")
	req := bleve.NewSearchRequest(query)
	req.Size = 10000
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	return b.index.Batch(batch)
}

// Search runs a match query and maps hits back onto the caller's chunks.
func (b *BleveKeyword) Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error) {
	if len(chunks) == 0 || strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	byID := make(map[string]model.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content_text")
	req := bleve.NewSearchRequest(matchQuery)
	// Over-fetch: hits outside the caller's chunk set are discarded.
	req.Size = topK * 4
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	var scored []ScoredChunk
	for _, hit := range res.Hits {
		chunk, ok := byID[hit.ID]
		if !ok {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: hit.Score, Source: "keyword"})
		if len(scored) >= topK {
			break
		}
	}
	return scored, nil
}

// Count returns the number of indexed chunks.
func (b *BleveKeyword) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close releases the index.
func (b *BleveKeyword) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
