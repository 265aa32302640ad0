package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWorkspace lays out a config dir with data paths rooted inside it
// so commands never touch the real working directory.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "assets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "index"), 0o755))

	configYAML := fmt.Sprintf(`version: 1
paths:
  assets_dir: %[1]s/data/assets
  index_dir: %[1]s/data/index
  catalog_path: %[1]s/data/document_catalog.yaml
  golden_path: %[1]s/data/golden_questions.yaml
  trace_path: %[1]s/data/traces/answer_trace.jsonl
logging:
  file_path: %[1]s/logs/manualqa.log
`, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".manualqa.yaml"), []byte(configYAML), 0o644))
	return dir
}

func writeWorkspaceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// executeCommand runs the CLI against the workspace config dir and
// returns combined output.
func executeCommand(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"ingest", "ask", "search", "eval", "validate", "visual", "serve", "doctor", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommandHelp(t *testing.T) {
	dir := writeWorkspace(t)

	out, err := executeCommand(t, dir, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "manualqa ingests equipment PDF manuals")
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "--config-dir")
}

func TestRootCommandVersionFlag(t *testing.T) {
	dir := writeWorkspace(t)

	out, err := executeCommand(t, dir, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "manualqa version")
}

func TestRootCommandUnknownSubcommand(t *testing.T) {
	dir := writeWorkspace(t)

	_, err := executeCommand(t, dir, "frobnicate")
	require.Error(t, err)
}
