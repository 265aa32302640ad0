package embed

import (
	"fmt"
	"time"

	"github.com/fieldscope/manualqa/internal/config"
)

// NewFromConfig builds the embedder stack described by the config:
// provider, then retry, then LRU cache.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	var base Embedder
	switch cfg.Embed.Provider {
	case "hashed":
		base = NewHashedEmbedder(cfg.Embed.Dimensions)
	case "ollama":
		base = NewOllamaEmbedder(
			cfg.Ollama.Host,
			cfg.Embed.Model,
			cfg.Embed.Dimensions,
			time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second,
		)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embed.Provider)
	}

	wrapped := NewRetryEmbedder(base, cfg.Embed.MaxRetries, time.Second)
	return NewCachedEmbedder(wrapped, cfg.Embed.CacheSize), nil
}
