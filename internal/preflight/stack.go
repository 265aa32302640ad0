package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/fieldscope/manualqa/internal/config"
	"github.com/fieldscope/manualqa/internal/embed"
	"github.com/fieldscope/manualqa/internal/llm"
)

// CheckConfig validates the loaded configuration.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "config", Required: true}
	if err := cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "configuration is valid"
	return result
}

// CheckContracts verifies the catalog and golden question files exist.
// Missing contracts disable eval and catalog cross-checks but not
// ask/search, so this is advisory.
func (c *Checker) CheckContracts(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "contracts", Required: false}

	var missing []string
	for _, path := range []string{cfg.Paths.CatalogPath, cfg.Paths.GoldenPath} {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d contract file(s) missing", len(missing))
		result.Details = fmt.Sprintf("missing: %v", missing)
		return result
	}
	result.Status = StatusPass
	result.Message = "catalog and golden questions present"
	return result
}

// CheckEmbedder probes the configured embedding provider with one
// input and verifies the dimension. Retrieval degrades to keyword-only
// without embeddings, so failures are advisory.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "embedder", Required: false}

	if c.offline && cfg.Embed.Provider == "ollama" {
		result.Status = StatusWarn
		result.Message = "skipped (offline mode, ollama provider)"
		return result
	}

	embedder, err := embed.NewFromConfig(cfg)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot build %s embedder: %v", cfg.Embed.Provider, err)
		return result
	}

	vec, err := embedder.Embed(ctx, "preflight probe")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("embedding probe failed: %v", err)
		return result
	}
	if len(vec) != cfg.Embed.Dimensions {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("dimension mismatch: got %d, configured %d", len(vec), cfg.Embed.Dimensions)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s, %d dims)", cfg.Embed.Provider, embedder.ModelName(), len(vec))
	return result
}

// CheckOllama probes the Ollama server when any LLM stage needs it.
func (c *Checker) CheckOllama(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "ollama", Required: false}

	needed := cfg.Answer.UseLLMDraft ||
		cfg.Retrieval.RerankEnabled ||
		cfg.Embed.Provider == "ollama" ||
		(cfg.Agent.Enabled && cfg.Agent.Planner == "llm")
	if !needed {
		result.Status = StatusPass
		result.Message = "not required (no LLM stage enabled)"
		return result
	}
	if c.offline {
		result.Status = StatusWarn
		result.Message = "skipped (offline mode)"
		return result
	}

	client := llm.NewFromConfig(cfg.Ollama)
	if err := client.Available(ctx); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreachable at %s: %v", cfg.Ollama.Host, err)
		result.Details = "LLM stages degrade to extractive answers until the server is up"
		return result
	}

	result.Status = StatusPass
	result.Message = "reachable at " + cfg.Ollama.Host
	return result
}
