package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records that checks passed, so serve skips the full suite
// on subsequent startups.
const MarkerFile = ".preflight-ok"

// NeedsCheck reports whether the marker is absent from indexDir.
func NeedsCheck(indexDir string) bool {
	_, err := os.Stat(filepath.Join(indexDir, MarkerFile))
	return os.IsNotExist(err)
}

// MarkPassed writes the marker with the current timestamp.
func MarkPassed(indexDir string) error {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(filepath.Join(indexDir, MarkerFile), stamp, 0o644)
}

// ClearMarker removes the marker, forcing a re-check on the next run.
func ClearMarker(indexDir string) error {
	err := os.Remove(filepath.Join(indexDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
