package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCommandReportsChecks(t *testing.T) {
	dir := writeWorkspace(t)
	writeContracts(t, dir)

	out, err := executeCommand(t, dir, "doctor", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "manualqa system check")
	assert.Contains(t, out, "[PASS] config:")
	assert.Contains(t, out, "embedder")

	_, statErr := os.Stat(filepath.Join(dir, "data", "index", ".preflight-ok"))
	assert.NoError(t, statErr, "marker written on success")
}

func TestDoctorCommandJSON(t *testing.T) {
	dir := writeWorkspace(t)
	writeContracts(t, dir)

	out, err := executeCommand(t, dir, "doctor", "--offline", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "disk_space"`)
}
