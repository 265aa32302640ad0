package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRendererRejectsNonTTY(t *testing.T) {
	_, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a TTY")
}

func TestIngestModelProgressView(t *testing.T) {
	m := newIngestModel()
	m.styles = NoColorStyles()

	updated, _ := m.Update(progressUpdateMsg{
		Stage:   StageExtracting,
		Current: 3,
		Total:   12,
		Message: "Processed page 3/12",
	})
	m = updated.(*ingestModel)

	view := m.View()
	assert.Contains(t, view, "manualqa ingest")
	assert.Contains(t, view, "Extracting")
	assert.Contains(t, view, "3/12")
}

func TestIngestModelWarningTail(t *testing.T) {
	m := newIngestModel()
	m.styles = NoColorStyles()

	for i := 0; i < maxVisibleWarnings+2; i++ {
		updated, _ := m.Update(warningMsg{Message: "warning"})
		m = updated.(*ingestModel)
	}
	assert.Len(t, m.warnings, maxVisibleWarnings+2)

	view := m.View()
	assert.Contains(t, view, "WARN")
}

func TestIngestModelCompleteQuits(t *testing.T) {
	m := newIngestModel()
	m.styles = NoColorStyles()

	updated, cmd := m.Update(completeMsg{
		Pages:    12,
		Chunks:   40,
		Duration: 2 * time.Second,
	})
	m = updated.(*ingestModel)
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "Done:")
	assert.Contains(t, view, "12 pages, 40 chunks")
}

func TestIngestModelKeyQuit(t *testing.T) {
	m := newIngestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
