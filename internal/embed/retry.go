package embed

import (
	"context"
	"time"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// RetryEmbedder retries transient provider failures with exponential
// backoff. Non-retryable errors pass through immediately.
type RetryEmbedder struct {
	inner      Embedder
	maxRetries int
	backoff    time.Duration
}

var _ Embedder = (*RetryEmbedder)(nil)

// NewRetryEmbedder wraps inner with up to maxRetries additional attempts.
func NewRetryEmbedder(inner Embedder, maxRetries int, backoff time.Duration) *RetryEmbedder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &RetryEmbedder{inner: inner, maxRetries: maxRetries, backoff: backoff}
}

func (r *RetryEmbedder) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = op()
		if err == nil {
			return nil
		}
		if !qaerrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

// Embed retries the inner Embed call.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.retry(ctx, func() error {
		var inner error
		out, inner = r.inner.Embed(ctx, text)
		return inner
	})
	return out, err
}

// EmbedBatch retries the inner EmbedBatch call as a unit.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.retry(ctx, func() error {
		var inner error
		out, inner = r.inner.EmbedBatch(ctx, texts)
		return inner
	})
	return out, err
}

// Dimensions passes through.
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName passes through.
func (r *RetryEmbedder) ModelName() string { return r.inner.ModelName() }

// Available passes through without retry; health probes should be cheap.
func (r *RetryEmbedder) Available(ctx context.Context) error { return r.inner.Available(ctx) }

// Close passes through.
func (r *RetryEmbedder) Close() error { return r.inner.Close() }
