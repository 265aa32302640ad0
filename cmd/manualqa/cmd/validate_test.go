package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogYAML = `documents:
  - doc_id: pump-900
    title: Pump 900 Service Manual
    filename: pump-900.pdf
    status: present
  - doc_id: vfd-200
    title: VFD 200 Operating Guide
    filename: vfd-200.pdf
    status: missing
`

const testGoldenYAML = `meta:
  docs:
    pump-900: {}
    vfd-200: {}
questions:
  - id: q1
    doc: pump-900
    intent: spec_lookup
    evidence: table
    question: What is the impeller bolt torque?
    expected_keywords: torque
`

func writeContracts(t *testing.T, dir string) {
	t.Helper()
	writeWorkspaceFile(t, dir, "data/document_catalog.yaml", testCatalogYAML)
	writeWorkspaceFile(t, dir, "data/golden_questions.yaml", testGoldenYAML)
	writeWorkspaceFile(t, dir, "data/pump-900.pdf", "%PDF-1.4 stub")
}

func TestValidateCommandOK(t *testing.T) {
	dir := writeWorkspace(t)
	writeContracts(t, dir)

	out, err := executeCommand(t, dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Contracts OK")
	assert.Contains(t, out, "WARN: Catalog marks missing document: vfd-200")
}

func TestValidateCommandStrictFiles(t *testing.T) {
	dir := writeWorkspace(t)
	writeContracts(t, dir)

	out, err := executeCommand(t, dir, "validate", "--strict-files")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract validation failed")
	assert.Contains(t, out, "ERROR: Catalog marks missing document: vfd-200")
}

func TestValidateCommandUnknownDocReference(t *testing.T) {
	dir := writeWorkspace(t)
	writeWorkspaceFile(t, dir, "data/document_catalog.yaml", `documents:
  - doc_id: pump-900
    title: Pump 900 Service Manual
    filename: pump-900.pdf
    status: missing
`)
	writeWorkspaceFile(t, dir, "data/golden_questions.yaml", `questions:
  - id: q1
    doc: chiller-7
    question: What is the refrigerant charge?
`)

	out, err := executeCommand(t, dir, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "unknown doc id: chiller-7")
}
