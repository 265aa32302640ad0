// Package llm wraps the local Ollama chat endpoint for answer drafting,
// evidence reranking, plan generation, and vision captioning. Every
// adapter degrades to a deterministic fallback when the model is
// unreachable or returns garbage.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fieldscope/manualqa/internal/config"
	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// Message is one chat turn. Images carry base64-encoded page renders for
// vision models.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatOptions tune a single chat call.
type ChatOptions struct {
	Model       string
	Temperature float64
}

// Client is the chat surface the drafter, reranker, planner, and
// captioner share.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
	Available(ctx context.Context) error
}

// OllamaClient talks to a local Ollama server over /api/chat.
type OllamaClient struct {
	host      string
	chatModel string
	client    *http.Client
}

var _ Client = (*OllamaClient)(nil)

// ClientOption configures an OllamaClient.
type ClientOption func(*OllamaClient)

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *OllamaClient) { o.client = c }
}

// NewOllamaClient creates a chat client against the given host.
func NewOllamaClient(host, chatModel string, timeout time.Duration, opts ...ClientOption) *OllamaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	o := &OllamaClient{
		host:      strings.TrimRight(host, "/"),
		chatModel: chatModel,
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromConfig builds a client from the shared Ollama settings.
func NewFromConfig(cfg config.OllamaConfig) *OllamaClient {
	return NewOllamaClient(cfg.Host, cfg.ChatModel, time.Duration(cfg.TimeoutSeconds)*time.Second)
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
}

// Chat sends one non-streaming chat request and returns the assistant
// message content.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = o.chatModel
	}
	payload := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": opts.Temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", qaerrors.New(qaerrors.ErrCodeLLMUnavailable, "ollama chat unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", qaerrors.New(qaerrors.ErrCodeLLMUnavailable,
			fmt.Sprintf("ollama chat returned %d", resp.StatusCode), nil)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", qaerrors.New(qaerrors.ErrCodeLLMBadOutput, "ollama chat response not decodable", err)
	}
	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", qaerrors.New(qaerrors.ErrCodeLLMBadOutput, "ollama chat returned empty content", nil)
	}
	return content, nil
}

// Available probes the server tag list.
func (o *OllamaClient) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return qaerrors.New(qaerrors.ErrCodeLLMUnavailable, "ollama unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return qaerrors.New(qaerrors.ErrCodeLLMUnavailable,
			fmt.Sprintf("ollama health returned %d", resp.StatusCode), nil)
	}
	return nil
}
