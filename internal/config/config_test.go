package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Retrieval.TopN)
	assert.Equal(t, 20, cfg.Retrieval.TopKKeyword)
	assert.Equal(t, 24, cfg.Retrieval.RerankPoolSize)
	assert.Equal(t, 420, cfg.Retrieval.SnippetMaxChars)
	assert.Equal(t, 80, cfg.Ingest.OCRMinChars)
	assert.Equal(t, 400, cfg.Ingest.VisionTextThreshold)
	assert.Equal(t, 0.8, cfg.Ingest.MinCoverage)
	assert.Equal(t, "metadata", cfg.Retrieval.VectorBackend)
	assert.Equal(t, "data/traces/retrieval_trace.jsonl", cfg.Paths.RetrievalTracePath)
	assert.Equal(t, "data/traces/agent_trace.jsonl", cfg.Paths.AgentTracePath)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Retrieval.KeywordWeight)
}

func TestLoadReadsYAMLAndValidates(t *testing.T) {
	dir := t.TempDir()
	content := []byte("retrieval:\n  keyword_weight: 0.7\n  vector_weight: 0.3\n  top_n: 4\n  top_k_keyword: 10\n  top_k_vector: 10\n  rerank_pool_size: 24\n  keyword_backend: memory\n  snippet_max_chars: 420\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Retrieval.KeywordWeight)
	assert.Equal(t, 4, cfg.Retrieval.TopN)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.KeywordWeight = 0.9
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.KeywordBackend = "elastic"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownVectorBackend(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.VectorBackend = "faiss"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadMinCoverage(t *testing.T) {
	cfg := Default()
	cfg.Ingest.MinCoverage = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding_min_coverage")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MANUALQA_KEYWORD_WEIGHT", "0.6")
	t.Setenv("MANUALQA_VECTOR_WEIGHT", "0.4")
	t.Setenv("MANUALQA_PAGE_WORKERS", "3")
	t.Setenv("MANUALQA_RERANK", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Retrieval.KeywordWeight)
	assert.Equal(t, 3, cfg.Ingest.PageWorkers)
	assert.True(t, cfg.Retrieval.RerankEnabled)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Retrieval.TopN = 9
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.TopN)
}
