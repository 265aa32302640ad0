package eval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/model"
)

const evalCatalogYAML = `documents:
  - doc_id: pump-900
    title: Pump 900 Service Manual
    filename: pump-900.pdf
    status: present
  - doc_id: vfd-200
    title: VFD 200 Operating Guide
    filename: vfd-200.pdf
    status: missing
`

const evalGoldenYAML = `meta:
  docs:
    pump-900: {}
    vfd-200: {}
questions:
  - id: q1
    doc: pump-900
    intent: spec_lookup
    evidence: table
    question: What is the impeller bolt torque?
  - id: q2
    doc: vfd-200
    intent: spec_lookup
    evidence: text
    question: What is the rated output current?
  - id: q3
    doc: multiple
    intent: follow_up_required
    evidence: text
    question: Why does it trip on startup?
`

func writeContracts(t *testing.T, catalogYAML, goldenYAML string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "document_catalog.yaml")
	goldenPath := filepath.Join(dir, "golden_questions.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogYAML), 0o644))
	require.NoError(t, os.WriteFile(goldenPath, []byte(goldenYAML), 0o644))
	return catalogPath, goldenPath
}

func groundedResponse(status string) *answer.Response {
	return &answer.Response{
		Status: status,
		Answer: "Impeller bolt torque is 25 Nm.",
		Citations: []answer.CitationOutput{{
			Citation: model.Citation{DocID: "pump-900", Page: 12},
			Label:    "pump-900 p.12",
		}},
	}
}

func TestRunGradesQuestions(t *testing.T) {
	catalogPath, goldenPath := writeContracts(t, evalCatalogYAML, evalGoldenYAML)

	runner := NewRunner(func(_ context.Context, req answer.Request) (*answer.Response, error) {
		assert.True(t, req.EnforceStructuredOutput)
		if strings.Contains(req.Query, "trip") {
			resp := groundedResponse("needs_follow_up")
			resp.FollowUpQuestion = "Which exact model/manual should I use for this issue?"
			return resp, nil
		}
		return groundedResponse("ok"), nil
	})

	summary, err := runner.Run(context.Background(), Options{
		CatalogPath: catalogPath,
		GoldenPath:  goldenPath,
		TopN:        6,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalQuestions)
	assert.Equal(t, 2, summary.PassedQuestions)
	assert.Equal(t, 1, summary.FailedQuestions)
	assert.Equal(t, 66.67, summary.PassRate)
	assert.Equal(t, []string{"vfd-200"}, summary.MissingDocs)

	q1 := summary.Results[0]
	assert.True(t, q1.Passed)
	assert.True(t, q1.Grounded)
	assert.Equal(t, 1, q1.CitationCount)
	assert.Equal(t, 1, q1.Turns)

	q2 := summary.Results[1]
	assert.Equal(t, "missing_doc", q2.AnswerStatus)
	assert.False(t, q2.Passed)
	assert.Equal(t, []string{"document not available in catalog"}, q2.Reasons)

	q3 := summary.Results[2]
	assert.True(t, q3.Passed)
	assert.True(t, q3.FollowUpExpected)
	assert.True(t, q3.FollowUpOK)
}

func TestRunFlagsUngroundedAnswers(t *testing.T) {
	catalogPath, goldenPath := writeContracts(t, evalCatalogYAML, evalGoldenYAML)

	runner := NewRunner(func(_ context.Context, req answer.Request) (*answer.Response, error) {
		if strings.Contains(req.Query, "trip") {
			// Follow-up expected but the pipeline answered directly.
			return groundedResponse("ok"), nil
		}
		return &answer.Response{Status: "ok", Answer: "No evidence."}, nil
	})

	summary, err := runner.Run(context.Background(), Options{
		CatalogPath: catalogPath,
		GoldenPath:  goldenPath,
	})
	require.NoError(t, err)

	q1 := summary.Results[0]
	assert.False(t, q1.Passed)
	assert.Equal(t, []string{"missing doc/page citation", "answer not grounded"}, q1.Reasons)

	q3 := summary.Results[2]
	assert.False(t, q3.Passed)
	assert.Equal(t, []string{"follow-up expected but not returned"}, q3.Reasons)
}

func TestRunMultiTurnCarriesFollowUpForward(t *testing.T) {
	goldenYAML := `meta:
  docs:
    pump-900: {}
questions:
  - id: q1
    doc: pump-900
    intent: troubleshooting
    evidence: text
    question: Why does it trip on startup?
    turn_count: 2
`
	catalogPath, goldenPath := writeContracts(t, evalCatalogYAML, goldenYAML)

	var queries []string
	runner := NewRunner(func(_ context.Context, req answer.Request) (*answer.Response, error) {
		queries = append(queries, req.Query)
		if len(queries) == 1 {
			resp := groundedResponse("needs_follow_up")
			resp.FollowUpQuestion = "Which exact model/manual should I use for this issue?"
			return resp, nil
		}
		assert.Equal(t, "pump-900", req.DocID)
		return groundedResponse("ok"), nil
	})

	summary, err := runner.Run(context.Background(), Options{
		CatalogPath: catalogPath,
		GoldenPath:  goldenPath,
	})
	require.NoError(t, err)

	require.Len(t, queries, 2)
	assert.Equal(t, "Why does it trip on startup?", queries[0])
	assert.Equal(t, "Why does it trip on startup? for pump-900", queries[1])

	result := summary.Results[0]
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, "ok", result.AnswerStatus)
	assert.True(t, result.Passed)
}

func TestRunDocFilterAndLimit(t *testing.T) {
	catalogPath, goldenPath := writeContracts(t, evalCatalogYAML, evalGoldenYAML)

	calls := 0
	runner := NewRunner(func(context.Context, answer.Request) (*answer.Response, error) {
		calls++
		return groundedResponse("ok"), nil
	})

	summary, err := runner.Run(context.Background(), Options{
		CatalogPath: catalogPath,
		GoldenPath:  goldenPath,
		DocIDFilter: "pump-900",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalQuestions)
	assert.Equal(t, "q1", summary.Results[0].QuestionID)

	calls = 0
	summary, err = runner.Run(context.Background(), Options{
		CatalogPath: catalogPath,
		GoldenPath:  goldenPath,
		Limit:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalQuestions)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 100.0, summary.PassRate)
	assert.Empty(t, summary.MissingDocs)
}
