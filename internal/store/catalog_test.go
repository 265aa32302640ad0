package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogStoreCRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	cs, err := NewCatalogStore(path)
	require.NoError(t, err)
	defer cs.Close()
	ctx := context.Background()

	rec := DocumentRecord{
		DocID:        "pump-900",
		Title:        "Pump 900 Service Manual",
		Filename:     "pump-900.pdf",
		PageCount:    42,
		ChunkCount:   310,
		Coverage:     0.97,
		ContractVer:  "visual-v1",
		VisualChunks: 12,
	}
	require.NoError(t, cs.Upsert(ctx, rec))

	got, err := cs.Get(ctx, "pump-900")
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, 310, got.ChunkCount)
	assert.False(t, got.IngestedAt.IsZero())

	// Upsert replaces.
	rec.ChunkCount = 999
	require.NoError(t, cs.Upsert(ctx, rec))
	got, err = cs.Get(ctx, "pump-900")
	require.NoError(t, err)
	assert.Equal(t, 999, got.ChunkCount)

	docs, err := cs.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "pump-900", docs[0].DocID)

	require.NoError(t, cs.Delete(ctx, "pump-900"))
	_, err = cs.Get(ctx, "pump-900")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCatalogStoreRequiresDocID(t *testing.T) {
	cs, err := NewCatalogStore(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	defer cs.Close()
	assert.Error(t, cs.Upsert(context.Background(), DocumentRecord{}))
}
