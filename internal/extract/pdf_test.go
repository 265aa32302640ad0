package extract

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

func TestPDFParserMissingFile(t *testing.T) {
	parser := NewPDFParser()

	_, err := parser.Parse(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeParseFailed, qaerrors.GetCode(err))
	assert.Contains(t, err.Error(), "missing.pdf")
}
