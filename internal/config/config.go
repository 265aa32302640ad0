// Package config loads and validates manualqa configuration.
// Resolution order: defaults, then the YAML config file, then
// MANUALQA_* environment variables (highest priority).
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete manualqa configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Agent     AgentConfig     `yaml:"agent" json:"agent"`
	Answer    AnswerConfig    `yaml:"answer" json:"answer"`
	Embed     EmbedConfig     `yaml:"embeddings" json:"embeddings"`
	Ollama    OllamaConfig    `yaml:"ollama" json:"ollama"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PathsConfig locates data on disk.
type PathsConfig struct {
	// AssetsDir holds per-document chunk and visual artifact directories.
	AssetsDir string `yaml:"assets_dir" json:"assets_dir"`
	// IndexDir holds the BM25 and vector indexes.
	IndexDir string `yaml:"index_dir" json:"index_dir"`
	// CatalogPath is the document catalog YAML.
	CatalogPath string `yaml:"catalog_path" json:"catalog_path"`
	// GoldenPath is the golden questions YAML.
	GoldenPath string `yaml:"golden_path" json:"golden_path"`
	// TracePath is the append-only answer trace JSONL file.
	TracePath string `yaml:"trace_path" json:"trace_path"`
	// RetrievalTracePath is the append-only retrieval trace JSONL file.
	RetrievalTracePath string `yaml:"retrieval_trace_path" json:"retrieval_trace_path"`
	// AgentTracePath is the append-only agent trace JSONL file.
	AgentTracePath string `yaml:"agent_trace_path" json:"agent_trace_path"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// PageWorkers is the number of parallel page processors.
	PageWorkers int `yaml:"page_workers" json:"page_workers"`
	// VisionPageBudget caps vision-summary calls per document.
	VisionPageBudget int `yaml:"vision_page_budget" json:"vision_page_budget"`
	// OCRMinChars triggers OCR when compact page text is shorter.
	OCRMinChars int `yaml:"ocr_min_chars" json:"ocr_min_chars"`
	// VisionTextThreshold marks pages with less text as vision candidates.
	VisionTextThreshold int `yaml:"vision_text_threshold" json:"vision_text_threshold"`
	// SecondPassMaxChars is the first truncation step for retried embeddings.
	SecondPassMaxChars int `yaml:"second_pass_max_chars" json:"second_pass_max_chars"`
	// FailFast fails ingestion when embedding coverage ends below MinCoverage.
	FailFast bool `yaml:"embedding_fail_fast" json:"embedding_fail_fast"`
	// MinCoverage is the embedding coverage floor enforced under FailFast.
	MinCoverage float64 `yaml:"embedding_min_coverage" json:"embedding_min_coverage"`
	// UseVision enables vision page summaries during ingestion.
	UseVision bool `yaml:"use_vision_ingestion" json:"use_vision_ingestion"`
	// MaxJobs bounds the in-memory ingestion job history.
	MaxJobs int `yaml:"max_jobs" json:"max_jobs"`
	// JobWorkers is the background job pool size.
	JobWorkers int `yaml:"job_workers" json:"job_workers"`
}

// RetrievalConfig tunes hybrid evidence retrieval.
type RetrievalConfig struct {
	// KeywordWeight and VectorWeight must sum to 1.0.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`

	TopKKeyword    int `yaml:"top_k_keyword" json:"top_k_keyword"`
	TopKVector     int `yaml:"top_k_vector" json:"top_k_vector"`
	TopN           int `yaml:"top_n" json:"top_n"`
	RerankPoolSize int `yaml:"rerank_pool_size" json:"rerank_pool_size"`

	// RerankEnabled turns on the LLM reranking stage.
	RerankEnabled bool `yaml:"rerank_enabled" json:"rerank_enabled"`

	// KeywordBackend selects the keyword index: "memory", "bleve", or "fts5".
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`

	// VectorBackend selects the dense index: "metadata" or "hnsw".
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// SnippetMaxChars caps evidence snippets.
	SnippetMaxChars int `yaml:"snippet_max_chars" json:"snippet_max_chars"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Planner        string `yaml:"planner" json:"planner"` // "heuristic" or "llm"
	MaxIterations  int    `yaml:"max_iterations" json:"max_iterations"`
	MaxToolCalls   int    `yaml:"max_tool_calls" json:"max_tool_calls"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// AnswerConfig tunes grounded answer composition.
type AnswerConfig struct {
	// MinTopScore is the absolute citation relevance floor.
	MinTopScore float64 `yaml:"min_top_score" json:"min_top_score"`
	// UseLLMDraft enables LLM answer drafting when available.
	UseLLMDraft bool `yaml:"use_llm_draft" json:"use_llm_draft"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	// Provider is "hashed" (deterministic local) or "ollama".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// OllamaConfig configures the local Ollama endpoint shared by the
// embedder, planner, drafter, reranker, and vision adapters.
type OllamaConfig struct {
	Host           string `yaml:"host" json:"host"`
	ChatModel      string `yaml:"chat_model" json:"chat_model"`
	VisionModel    string `yaml:"vision_model" json:"vision_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ServerConfig configures the HTTP and MCP surfaces.
type ServerConfig struct {
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// ConfigFileName is the project-local config file.
const ConfigFileName = ".manualqa.yaml"

// Default returns the default configuration.
func Default() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			AssetsDir:          "data/assets",
			IndexDir:           "data/index",
			CatalogPath:        "data/document_catalog.yaml",
			GoldenPath:         "data/golden_questions.yaml",
			TracePath:          "data/traces/answer_trace.jsonl",
			RetrievalTracePath: "data/traces/retrieval_trace.jsonl",
			AgentTracePath:     "data/traces/agent_trace.jsonl",
		},
		Ingest: IngestConfig{
			PageWorkers:         workers,
			VisionPageBudget:    8,
			OCRMinChars:         80,
			VisionTextThreshold: 400,
			SecondPassMaxChars:  2000,
			FailFast:            false,
			MinCoverage:         0.8,
			UseVision:           false,
			MaxJobs:             200,
			JobWorkers:          2,
		},
		Retrieval: RetrievalConfig{
			KeywordWeight:   0.5,
			VectorWeight:    0.5,
			TopKKeyword:     20,
			TopKVector:      20,
			TopN:            6,
			RerankPoolSize:  24,
			RerankEnabled:   false,
			KeywordBackend:  "memory",
			VectorBackend:   "metadata",
			SnippetMaxChars: 420,
		},
		Agent: AgentConfig{
			Enabled:        true,
			Planner:        "heuristic",
			MaxIterations:  4,
			MaxToolCalls:   6,
			TimeoutSeconds: 30,
		},
		Answer: AnswerConfig{
			MinTopScore: 0.18,
			UseLLMDraft: false,
		},
		Embed: EmbedConfig{
			Provider:   "hashed",
			Model:      "hashed-bow",
			Dimensions: 384,
			BatchSize:  16,
			CacheSize:  1000,
			MaxRetries: 2,
		},
		Ollama: OllamaConfig{
			Host:           "http://localhost:11434",
			ChatModel:      "qwen3:4b",
			VisionModel:    "llava:7b",
			TimeoutSeconds: 90,
		},
		Server: ServerConfig{
			Port:     8787,
			LogLevel: "info",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads configuration from dir/.manualqa.yaml if present, then
// applies environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename).
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Validate checks invariants that the pipeline depends on.
func (c *Config) Validate() error {
	sum := c.Retrieval.KeywordWeight + c.Retrieval.VectorWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.3f", sum)
	}
	if c.Retrieval.TopN <= 0 {
		return fmt.Errorf("retrieval.top_n must be positive, got %d", c.Retrieval.TopN)
	}
	if c.Retrieval.TopKKeyword <= 0 || c.Retrieval.TopKVector <= 0 {
		return fmt.Errorf("retrieval top_k values must be positive")
	}
	switch c.Retrieval.KeywordBackend {
	case "memory", "bleve", "fts5":
	default:
		return fmt.Errorf("unknown keyword_backend %q", c.Retrieval.KeywordBackend)
	}
	switch c.Retrieval.VectorBackend {
	case "metadata", "hnsw":
	default:
		return fmt.Errorf("unknown vector_backend %q", c.Retrieval.VectorBackend)
	}
	if c.Ingest.MinCoverage < 0 || c.Ingest.MinCoverage > 1 {
		return fmt.Errorf("ingest.embedding_min_coverage must be in [0,1], got %.3f", c.Ingest.MinCoverage)
	}
	switch c.Embed.Provider {
	case "hashed", "ollama":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embed.Provider)
	}
	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embed.Dimensions)
	}
	switch c.Agent.Planner {
	case "heuristic", "llm":
	default:
		return fmt.Errorf("unknown agent planner %q", c.Agent.Planner)
	}
	if c.Agent.MaxIterations <= 0 || c.Agent.MaxToolCalls <= 0 {
		return fmt.Errorf("agent limits must be positive")
	}
	if c.Ingest.PageWorkers < 1 {
		c.Ingest.PageWorkers = 1
	}
	return nil
}

// applyEnvOverrides applies MANUALQA_* environment variables.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MANUALQA_ASSETS_DIR"); v != "" {
		c.Paths.AssetsDir = v
	}
	if v := os.Getenv("MANUALQA_INDEX_DIR"); v != "" {
		c.Paths.IndexDir = v
	}
	if v := os.Getenv("MANUALQA_CATALOG_PATH"); v != "" {
		c.Paths.CatalogPath = v
	}
	if v := os.Getenv("MANUALQA_GOLDEN_PATH"); v != "" {
		c.Paths.GoldenPath = v
	}
	if v := os.Getenv("MANUALQA_OLLAMA_HOST"); v != "" {
		c.Ollama.Host = v
	}
	if v := os.Getenv("MANUALQA_EMBED_PROVIDER"); v != "" {
		c.Embed.Provider = v
	}
	if v := os.Getenv("MANUALQA_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.KeywordWeight = f
		}
	}
	if v := os.Getenv("MANUALQA_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.VectorWeight = f
		}
	}
	if v := os.Getenv("MANUALQA_PAGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.PageWorkers = n
		}
	}
	if v := os.Getenv("MANUALQA_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("MANUALQA_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MANUALQA_RERANK"); v != "" {
		c.Retrieval.RerankEnabled = v == "1" || strings.EqualFold(v, "true")
	}
}
