package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/visual"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add("pump-900")
	d.Add("pump-900")
	d.Add("vfd-200")

	select {
	case batch := <-d.Output():
		assert.ElementsMatch(t, []string{"pump-900", "vfd-200"}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestDebouncerStopClosesOutput(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()

	_, ok := <-d.Output()
	assert.False(t, ok)

	// Add after Stop is a no-op.
	d.Add("pump-900")
}

func TestDocIDForPath(t *testing.T) {
	assert.Equal(t, "pump-900", docIDForPath("pump-900/visual_chunks.jsonl"))
	assert.Equal(t, "", docIDForPath("visual_chunks.jsonl"))
}

func TestIsArtifactFile(t *testing.T) {
	assert.True(t, isArtifactFile("visual_chunks.jsonl"))
	assert.True(t, isArtifactFile("visual_manifest.json"))
	assert.False(t, isArtifactFile("pump-900.pdf"))
	assert.False(t, isArtifactFile(".ingest.lock"))
}

func startWatcher(t *testing.T, assetsDir string) (<-chan string, chan *visual.ValidationResult) {
	t.Helper()
	docIDs := make(chan string, 10)
	results := make(chan *visual.ValidationResult, 10)

	w, err := NewWatcher(assetsDir, Options{DebounceWindow: 30 * time.Millisecond},
		func(docID string, result *visual.ValidationResult) {
			docIDs <- docID
			results <- result
		}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return docIDs, results
}

func waitForDoc(t *testing.T, docIDs <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-docIDs:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("no validation observed for %s", want)
		}
	}
}

func TestWatcherValidatesOnArtifactWrite(t *testing.T) {
	assetsDir := t.TempDir()
	docDir := filepath.Join(assetsDir, "pump-900")
	require.NoError(t, os.MkdirAll(docDir, 0o755))

	docIDs, results := startWatcher(t, assetsDir)

	require.NoError(t, os.WriteFile(filepath.Join(docDir, "visual_chunks.jsonl"), []byte("{not json\n"), 0o644))

	waitForDoc(t, docIDs, "pump-900")
	result := <-results
	require.NotNil(t, result)
	// Embeddings and manifest are absent, so validation stops at the
	// missing-file warnings in non-strict mode.
	assert.True(t, result.OK())
	assert.NotEmpty(t, result.Warnings)
}

func TestWatcherPicksUpNewDocumentDir(t *testing.T) {
	assetsDir := t.TempDir()
	docIDs, _ := startWatcher(t, assetsDir)

	docDir := filepath.Join(assetsDir, "vfd-200")
	require.NoError(t, os.MkdirAll(docDir, 0o755))
	waitForDoc(t, docIDs, "vfd-200")

	require.NoError(t, os.WriteFile(filepath.Join(docDir, "visual_manifest.json"), []byte("{}"), 0o644))
	waitForDoc(t, docIDs, "vfd-200")
}

func TestWatcherIgnoresFilesOutsideDocDirs(t *testing.T) {
	assetsDir := t.TempDir()
	docIDs, _ := startWatcher(t, assetsDir)

	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "stray.json"), []byte("{}"), 0o644))

	select {
	case got := <-docIDs:
		t.Fatalf("unexpected validation for %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}
