package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/pkg/version"
)

func TestVersionCommand(t *testing.T) {
	dir := writeWorkspace(t)

	out, err := executeCommand(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "manualqa "+version.Version)
	assert.Contains(t, out, "commit:")
}

func TestVersionCommandShort(t *testing.T) {
	dir := writeWorkspace(t)

	out, err := executeCommand(t, dir, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)
}

func TestVersionCommandJSON(t *testing.T) {
	dir := writeWorkspace(t)

	out, err := executeCommand(t, dir, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
	assert.NotEmpty(t, info["go_version"])
}
