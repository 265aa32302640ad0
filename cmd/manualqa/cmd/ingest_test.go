package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestCommandRequiresArgs(t *testing.T) {
	dir := writeWorkspace(t)

	_, err := executeCommand(t, dir, "ingest", "pump-900")
	require.Error(t, err)
}

func TestIngestCommandMissingPDF(t *testing.T) {
	dir := writeWorkspace(t)

	_, err := executeCommand(t, dir, "ingest", "pump-900", dir+"/no-such-manual.pdf", "--plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-manual.pdf")
}
