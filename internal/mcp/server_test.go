package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/answer"
	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/search"
)

func testJobManager() *ingest.JobManager {
	return ingest.NewJobManager(func(_ context.Context, docID, _ string, _ ingest.ProgressFunc) (*ingest.Result, error) {
		return &ingest.Result{DocID: docID, TotalChunks: 3}, nil
	}, 1, 10)
}

func testAskFunc(resp *answer.Response, err error) AskFunc {
	return func(context.Context, answer.Request) (*answer.Response, error) {
		return resp, err
	}
}

func testSearchFunc(result *search.Result, err error) SearchFunc {
	return func(context.Context, string, search.Options) (*search.Result, error) {
		return result, err
	}
}

func groundedResponse() *answer.Response {
	return &answer.Response{
		Query:      "impeller bolt torque",
		Status:     "ok",
		Confidence: "high",
		Answer:     "Impeller bolt torque is 25 Nm.",
		Citations: []answer.CitationOutput{{
			Citation: model.Citation{DocID: "pump-900", Page: 12, TableID: "tbl_pump-900_12_000"},
			Label:    "pump-900 p.12, table tbl_pump-900_12_000",
		}},
	}
}

func evidenceResult() *search.Result {
	return &search.Result{
		Query:  "impeller bolt torque",
		Intent: search.IntentTable,
		Hits: []search.EvidenceHit{{
			Chunk: model.Chunk{
				ChunkID:     "chunk-1",
				DocID:       "pump-900",
				PageStart:   12,
				PageEnd:     12,
				ContentType: model.ContentTypeTableRow,
			},
			Score:          0.91,
			Rank:           1,
			MatchedAnchors: []string{"torque"},
			Snippet:        "Impeller bolt torque | 25 | Nm",
		}},
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	jobs := testJobManager()
	ask := testAskFunc(groundedResponse(), nil)
	searchFn := testSearchFunc(evidenceResult(), nil)

	_, err := NewServer(nil, searchFn, jobs, nil)
	assert.ErrorContains(t, err, "ask function is required")

	_, err = NewServer(ask, nil, jobs, nil)
	assert.ErrorContains(t, err, "search function is required")

	_, err = NewServer(ask, searchFn, nil, nil)
	assert.ErrorContains(t, err, "job manager is required")

	srv, err := NewServer(ask, searchFn, jobs, nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.MCPServer())

	name, _ := srv.Info()
	assert.Equal(t, "manualqa", name)
}

func TestListTools(t *testing.T) {
	srv, err := NewServer(testAskFunc(groundedResponse(), nil), testSearchFunc(evidenceResult(), nil), testJobManager(), nil)
	require.NoError(t, err)

	tools := srv.ListTools()
	require.Len(t, tools, 3)
	names := []string{tools[0].Name, tools[1].Name, tools[2].Name}
	assert.Equal(t, []string{"ask", "search_evidence", "ingest_status"}, names)
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Description)
	}
}

func TestCallToolAsk(t *testing.T) {
	var got answer.Request
	ask := func(_ context.Context, req answer.Request) (*answer.Response, error) {
		got = req
		return groundedResponse(), nil
	}
	srv, err := NewServer(ask, testSearchFunc(evidenceResult(), nil), testJobManager(), nil)
	require.NoError(t, err)

	out, err := srv.CallTool(context.Background(), "ask", map[string]any{
		"query":   "impeller bolt torque",
		"doc_id":  "pump-900",
		"top_n":   float64(4),
		"agentic": true,
	})
	require.NoError(t, err)

	markdown := out.(string)
	assert.Contains(t, markdown, "## Answer (ok, confidence: high)")
	assert.Contains(t, markdown, "Impeller bolt torque is 25 Nm.")
	assert.Contains(t, markdown, "pump-900 p.12")

	assert.Equal(t, "pump-900", got.DocID)
	assert.Equal(t, 4, got.TopN)
	assert.True(t, got.UseAgentic)
}

func TestCallToolAskRejectsEmptyQuery(t *testing.T) {
	srv, err := NewServer(testAskFunc(groundedResponse(), nil), testSearchFunc(evidenceResult(), nil), testJobManager(), nil)
	require.NoError(t, err)

	_, err = srv.CallTool(context.Background(), "ask", map[string]any{"query": "   "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallToolSearchEvidence(t *testing.T) {
	var gotOpts search.Options
	searchFn := func(_ context.Context, _ string, opts search.Options) (*search.Result, error) {
		gotOpts = opts
		return evidenceResult(), nil
	}
	srv, err := NewServer(testAskFunc(groundedResponse(), nil), searchFn, testJobManager(), nil)
	require.NoError(t, err)

	out, err := srv.CallTool(context.Background(), "search_evidence", map[string]any{
		"query":  "impeller bolt torque",
		"doc_id": "pump-900",
		"rerank": true,
	})
	require.NoError(t, err)

	markdown := out.(string)
	assert.Contains(t, markdown, `## Evidence for "impeller bolt torque"`)
	assert.Contains(t, markdown, "pump-900 p.12 [table_row]")
	assert.Contains(t, markdown, "`torque`")

	assert.Equal(t, "pump-900", gotOpts.DocID)
	assert.True(t, gotOpts.Rerank)
	assert.Equal(t, 6, gotOpts.TopN, "defaults when not provided")
}

func TestCallToolIngestStatus(t *testing.T) {
	jobs := testJobManager()
	job, err := jobs.Submit("pump-900", "data/pump-900.pdf")
	require.NoError(t, err)

	srv, err := NewServer(testAskFunc(groundedResponse(), nil), testSearchFunc(evidenceResult(), nil), jobs, nil)
	require.NoError(t, err)

	out, err := srv.CallTool(context.Background(), "ingest_status", map[string]any{})
	require.NoError(t, err)
	status := out.(*IngestStatusOutput)
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, "pump-900", status.Jobs[0].DocID)
	assert.Equal(t, "queued", status.Jobs[0].Status)

	out, err = srv.CallTool(context.Background(), "ingest_status", map[string]any{"job_id": job.ID})
	require.NoError(t, err)
	status = out.(*IngestStatusOutput)
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, job.ID, status.Jobs[0].ID)

	_, err = srv.CallTool(context.Background(), "ingest_status", map[string]any{"job_id": "nope"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallToolUnknown(t *testing.T) {
	srv, err := NewServer(testAskFunc(groundedResponse(), nil), testSearchFunc(evidenceResult(), nil), testJobManager(), nil)
	require.NoError(t, err)

	_, err = srv.CallTool(context.Background(), "rm_rf", nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "rm_rf")
}

func TestMapError(t *testing.T) {
	assert.Nil(t, MapError(nil))

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"input", qaerrors.ValidationError("bad query", nil), ErrCodeInvalidParams},
		{"retrieval", qaerrors.RetrievalError("index gone", nil), ErrCodeRetrievalFailed},
		{"embed", qaerrors.EmbedError("ollama offline", nil), ErrCodeModelOffline},
		{"contract", qaerrors.ContractError("catalog broken", nil), ErrCodeContractBroken},
		{"internal", assert.AnError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mcpErr *MCPError
			require.ErrorAs(t, MapError(tt.err), &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}

	// Already-mapped errors pass through unchanged.
	orig := NewInvalidParamsError("nope")
	assert.Same(t, orig, MapError(orig))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 6, clampLimit(0, 6, 1, 20))
	assert.Equal(t, 6, clampLimit(-3, 6, 1, 20))
	assert.Equal(t, 20, clampLimit(50, 6, 1, 20))
	assert.Equal(t, 10, clampLimit(10, 6, 1, 20))
}
