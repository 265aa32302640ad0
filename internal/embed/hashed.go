package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultHashedDimensions is the dimensionality of the hashed embedder.
const DefaultHashedDimensions = 384

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// HashedEmbedder is a deterministic, dependency-free embedder that maps
// tokens into a fixed-size vector by FNV hashing and L2-normalizes the
// result. It keeps retrieval working when no model server is running;
// cosine similarity over these vectors approximates lexical overlap.
type HashedEmbedder struct {
	dims int
}

var _ Embedder = (*HashedEmbedder)(nil)

// NewHashedEmbedder creates a hashed bag-of-words embedder.
func NewHashedEmbedder(dims int) *HashedEmbedder {
	if dims <= 0 {
		dims = DefaultHashedDimensions
	}
	return &HashedEmbedder{dims: dims}
}

// Embed hashes tokens into vector slots and normalizes.
func (h *HashedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		idx := int(hasher.Sum64() % uint64(h.dims))
		vec[idx]++
	}
	return NormalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (h *HashedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the vector size.
func (h *HashedEmbedder) Dimensions() int { return h.dims }

// ModelName identifies the embedder.
func (h *HashedEmbedder) ModelName() string { return "hashed-bow" }

// Available always succeeds; the embedder is local.
func (h *HashedEmbedder) Available(context.Context) error { return nil }

// Close is a no-op.
func (h *HashedEmbedder) Close() error { return nil }
