package contracts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const catalogYAML = `documents:
  - doc_id: pump-900
    title: Pump 900 Service Manual
    filename: pump-900.pdf
    status: PRESENT
  - doc_id: vfd-200
    title: VFD 200 Operating Guide
    filename: vfd-200.pdf
    status: missing
    notes: awaiting vendor upload
`

const goldenYAML = `meta:
  docs:
    vfd-200: {}
    pump-900: {}
questions:
  - id: q1
    doc: pump-900
    intent: spec_lookup
    evidence: table
    question: What is the impeller bolt torque?
    expected_keywords: torque
  - id: q2
    doc: multiple
    intent: follow_up_required
    evidence: text
    question: Why does it trip on startup?
    question_type: ambiguous
    difficulty: hard
    rag_mode: hybrid
    turn_count: 2
    expected_keywords:
      - overload
      - trip
    min_keyword_hits: 2
`

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "document_catalog.yaml", catalogYAML)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 2)

	first := catalog.Entries[0]
	assert.Equal(t, "pump-900", first.DocID)
	assert.Equal(t, "present", first.Status, "status is lowercased")
	assert.True(t, first.Present())
	assert.Equal(t, "pump-900.pdf", first.Filename)

	entry, ok := catalog.Get("vfd-200")
	require.True(t, ok)
	assert.Equal(t, "missing", entry.Status)
	assert.Equal(t, "awaiting vendor upload", entry.Notes)

	_, ok = catalog.Get("unknown")
	assert.False(t, ok)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YAML file not found")
}

func TestLoadCatalogRejectsNonMapping(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "document_catalog.yaml", "- just\n- a\n- list\n")

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestLoadGoldenQuestions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "golden_questions.yaml", goldenYAML)

	set, err := LoadGoldenQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pump-900", "vfd-200"}, set.DocIDs, "meta doc ids are sorted")
	require.Len(t, set.Questions, 2)

	q1 := set.Questions[0]
	assert.Equal(t, "q1", q1.QuestionID)
	assert.Equal(t, "straightforward", q1.QuestionType)
	assert.Equal(t, "easy", q1.Difficulty)
	assert.Equal(t, "table", q1.RagMode, "rag_mode falls back to evidence")
	assert.Equal(t, 1, q1.TurnCount)
	assert.Equal(t, []string{"torque"}, q1.ExpectedKeywords, "scalar keywords are wrapped")
	assert.Equal(t, 1, q1.MinKeywordHits)

	q2 := set.Questions[1]
	assert.Equal(t, "ambiguous", q2.QuestionType)
	assert.Equal(t, "hybrid", q2.RagMode)
	assert.Equal(t, 2, q2.TurnCount)
	assert.Equal(t, []string{"overload", "trip"}, q2.ExpectedKeywords)
	assert.Equal(t, 2, q2.MinKeywordHits)
}

func TestValidateCleanContracts(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "document_catalog.yaml", strings.ReplaceAll(catalogYAML, "PRESENT", "present"))
	goldenPath := writeFile(t, dir, "golden_questions.yaml", goldenYAML)
	writeFile(t, dir, "pump-900.pdf", "%PDF-1.4")

	result, err := Validate(catalogPath, goldenPath, false)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.True(t, result.OK())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Catalog marks missing document: vfd-200", result.Warnings[0])
}

func TestValidateStrictFilesPromotesMissing(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "document_catalog.yaml", catalogYAML)
	goldenPath := writeFile(t, dir, "golden_questions.yaml", goldenYAML)
	writeFile(t, dir, "pump-900.pdf", "%PDF-1.4")

	result, err := Validate(catalogPath, goldenPath, true)
	require.NoError(t, err)
	assert.Contains(t, result.Errors, "Catalog marks missing document: vfd-200")
	assert.False(t, result.OK())
}

func TestValidateDetectsViolations(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "document_catalog.yaml", `documents:
  - doc_id: pump-900
    title: Pump 900
    filename: pump-900.pdf
    status: present
  - doc_id: pump-900
    title: Duplicate
    filename: dup.pdf
    status: present
  - doc_id: hvac-10
    title: HVAC
    filename: ""
    status: present
  - doc_id: crane-5
    title: Crane
    filename: crane-5.pdf
    status: archived
`)
	goldenPath := writeFile(t, dir, "golden_questions.yaml", `meta:
  docs:
    boiler-3: {}
questions:
  - id: ""
    doc: pump-900
    question: ""
  - id: q9
    doc: ghost-doc
    question: Where is the relief valve?
`)

	result, err := Validate(catalogPath, goldenPath, false)
	require.NoError(t, err)
	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "Duplicate doc_id in catalog: pump-900")
	assert.Contains(t, joined, "Catalog file does not exist for pump-900: pump-900.pdf")
	assert.Contains(t, joined, "Catalog entry hvac-10 is present but filename is empty")
	assert.Contains(t, joined, "Catalog status for crane-5 must be 'present' or 'missing'")
	assert.Contains(t, joined, "Golden meta doc id missing from catalog: boiler-3")
	assert.Contains(t, joined, "Golden question has empty id")
	assert.Contains(t, joined, "Golden question <unknown> has empty question")
	assert.Contains(t, joined, "Golden question q9 references unknown doc id: ghost-doc")
}
