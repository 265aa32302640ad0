package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeEmbedUnavailable, "embedding provider down", nil)
	assert.Equal(t, CategoryEmbed, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.True(t, err.Retryable)

	cfg := ConfigError("bad weights", nil)
	assert.Equal(t, CategoryConfig, cfg.Category)
	assert.Equal(t, SeverityFatal, cfg.Severity)
	assert.False(t, cfg.Retryable)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeAssetWriteFailed, cause)
	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Contains(t, err.Error(), "ERR_204_ASSET_WRITE_FAILED")
	assert.Nil(t, Wrap(ErrCodeAssetWriteFailed, nil))
}

func TestIsMatchesByCode(t *testing.T) {
	inner := New(ErrCodeToolFailed, "search_evidence blew up", nil)
	outer := fmt.Errorf("execute step: %w", inner)
	assert.True(t, stderrors.Is(outer, New(ErrCodeToolFailed, "", nil)))
	assert.False(t, stderrors.Is(outer, New(ErrCodePlanInvalid, "", nil)))
}

func TestDetailsAndSuggestionChaining(t *testing.T) {
	err := RetrievalError("keyword leg failed", nil).
		WithDetail("index", "bm25").
		WithSuggestion("rebuild the index")
	assert.Equal(t, "bm25", err.Details["index"])
	assert.Equal(t, "rebuild the index", err.Suggestion)
}

func TestHelpers(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(EmbedError("down", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.True(t, IsFatal(ConfigError("bad", nil)))
	assert.Equal(t, ErrCodeInternal, GetCode(InternalError("boom", nil)))
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, "RetrievalError", Kind(RetrievalError("x", nil)))
	assert.Equal(t, "", Kind(nil))
}
