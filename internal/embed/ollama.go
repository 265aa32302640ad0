package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// OllamaEmbedder calls a local Ollama server. It tries the legacy
// /api/embeddings endpoint first and falls back to the newer /api/embed
// shape, so it works across Ollama versions.
type OllamaEmbedder struct {
	host   string
	model  string
	dims   int
	client *http.Client
}

var _ Embedder = (*OllamaEmbedder)(nil)

// OllamaOption configures an OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaEmbedder) { o.client = c }
}

// NewOllamaEmbedder creates an embedder against the given host.
func NewOllamaEmbedder(host, model string, dims int, timeout time.Duration, opts ...OllamaOption) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	o := &OllamaEmbedder{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type legacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *OllamaEmbedder) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama %s returned %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Embed generates an embedding for one text.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	value := strings.TrimSpace(text)
	if value == "" {
		return nil, qaerrors.ValidationError("embed called with empty text", nil)
	}

	var legacyErr error
	var legacy legacyEmbedResponse
	if err := o.postJSON(ctx, "/api/embeddings", legacyEmbedRequest{Model: o.model, Prompt: value}, &legacy); err != nil {
		legacyErr = err
	} else if len(legacy.Embedding) > 0 {
		return legacy.Embedding, nil
	} else {
		legacyErr = fmt.Errorf("legacy endpoint returned empty embedding")
	}

	var current embedResponse
	if err := o.postJSON(ctx, "/api/embed", embedRequest{Model: o.model, Input: value}, &current); err != nil {
		return nil, qaerrors.EmbedError(
			fmt.Sprintf("both embedding endpoints failed: %v; %v", legacyErr, err), err)
	}
	if len(current.Embeddings) == 0 || len(current.Embeddings[0]) == 0 {
		return nil, qaerrors.EmbedError("ollama returned empty embedding", nil)
	}
	return current.Embeddings[0], nil
}

// EmbedBatch embeds texts sequentially. Ollama has no batch endpoint for
// embeddings on older versions, so one request per text is the portable
// path.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// ModelName returns the model identifier.
func (o *OllamaEmbedder) ModelName() string { return o.model }

// Available probes the server root.
func (o *OllamaEmbedder) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return qaerrors.EmbedError("ollama unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return qaerrors.EmbedError(fmt.Sprintf("ollama health returned %d", resp.StatusCode), nil)
	}
	return nil
}

// Close is a no-op; the HTTP client owns no persistent resources.
func (o *OllamaEmbedder) Close() error { return nil }
