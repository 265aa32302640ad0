package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/config"
	"github.com/fieldscope/manualqa/internal/contracts"
	"github.com/fieldscope/manualqa/internal/eval"
	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/search"
)

func testServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	if deps.ValidateContracts == nil {
		deps.ValidateContracts = func() (*contracts.ValidationResult, error) {
			return &contracts.ValidationResult{}, nil
		}
	}
	if deps.Jobs == nil {
		deps.Jobs = ingest.NewJobManager(func(_ context.Context, docID, _ string, _ ingest.ProgressFunc) (*ingest.Result, error) {
			return &ingest.Result{DocID: docID}, nil
		}, 1, 10)
	}
	srv := httptest.NewServer(New(cfg, deps).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := testServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	contractsBody := body["contracts"].(map[string]any)
	assert.Equal(t, true, contractsBody["ok"])

	configBody := body["config"].(map[string]any)
	assert.Equal(t, float64(6), configBody["top_n"])
	assert.Equal(t, "memory", configBody["keyword_backend"])
}

func TestHealthDegradedOnContractErrors(t *testing.T) {
	srv := testServer(t, Deps{
		ValidateContracts: func() (*contracts.ValidationResult, error) {
			return &contracts.ValidationResult{Errors: []string{"Catalog entry has empty doc_id"}}, nil
		},
	})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, float64(1), body["contracts"].(map[string]any)["errors"])
}

func TestHealthContracts(t *testing.T) {
	srv := testServer(t, Deps{
		ValidateContracts: func() (*contracts.ValidationResult, error) {
			return &contracts.ValidationResult{Warnings: []string{"Catalog marks missing document: vfd-200"}}, nil
		},
	})

	resp, err := http.Get(srv.URL + "/health/contracts")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	warnings := body["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "vfd-200")
}

func TestAsk(t *testing.T) {
	var got answer.Request
	srv := testServer(t, Deps{
		Ask: func(_ context.Context, req answer.Request) (*answer.Response, error) {
			got = req
			return &answer.Response{Query: req.Query, Status: "ok", Answer: "Torque is 25 Nm."}, nil
		},
	})

	resp := postJSON(t, srv.URL+"/v1/ask", map[string]any{
		"query": "impeller bolt torque", "doc_id": "pump-900", "agentic": true, "structured": true,
	})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pump-900", got.DocID)
	assert.True(t, got.UseAgentic)
	assert.True(t, got.EnforceStructuredOutput)
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	srv := testServer(t, Deps{})

	resp := postJSON(t, srv.URL+"/v1/ask", map[string]any{"query": "   "})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "query must not be empty")
	assert.Equal(t, "ERR_102_INVALID_INPUT", body["code"])
}

func TestAskRejectsInvalidJSON(t *testing.T) {
	srv := testServer(t, Deps{})

	resp, err := http.Post(srv.URL+"/v1/ask", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSearch(t *testing.T) {
	srv := testServer(t, Deps{
		Search: func(_ context.Context, query string, opts search.Options) (*search.Result, error) {
			assert.Equal(t, "pump-900", opts.DocID)
			assert.True(t, opts.Rerank)
			return &search.Result{Query: query, Intent: search.IntentTable}, nil
		},
	})

	resp := postJSON(t, srv.URL+"/v1/search", map[string]any{
		"query": "impeller torque table", "doc_id": "pump-900", "rerank": true,
	})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "table", body["intent"])
}

func TestAnswerQueryEndpoint(t *testing.T) {
	var got answer.Request
	srv := testServer(t, Deps{
		Ask: func(_ context.Context, req answer.Request) (*answer.Response, error) {
			got = req
			return &answer.Response{Query: req.Query, Status: "ok", Answer: "25 Nm."}, nil
		},
	})

	resp, err := http.Get(srv.URL + "/answer?q=impeller+torque&doc_ids=pump-900,%20vfd-200&top_n=3")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "impeller torque", got.Query)
	assert.Equal(t, []string{"pump-900", "vfd-200"}, got.DocIDs)
	assert.Equal(t, 3, got.TopN)
}

func TestAnswerQueryEndpointAllowsEmptyQuery(t *testing.T) {
	srv := testServer(t, Deps{
		Ask: func(_ context.Context, req answer.Request) (*answer.Response, error) {
			assert.Empty(t, req.Query)
			return &answer.Response{Status: "not_found"}, nil
		},
	})

	resp, err := http.Get(srv.URL + "/answer")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not_found", body["status"])
}

func TestSearchQueryEndpoint(t *testing.T) {
	srv := testServer(t, Deps{
		Search: func(_ context.Context, query string, opts search.Options) (*search.Result, error) {
			assert.Equal(t, "wiring diagram", query)
			assert.Equal(t, "vfd-200", opts.DocID)
			assert.Equal(t, 12, opts.RerankPoolSize)
			return &search.Result{Query: query, Intent: search.IntentDiagram}, nil
		},
	})

	resp, err := http.Get(srv.URL + "/search?q=wiring+diagram&doc_id=vfd-200&rerank_pool_size=12")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "diagram", body["intent"])
}

func TestSearchDocIDsScopeFromBody(t *testing.T) {
	srv := testServer(t, Deps{
		Search: func(_ context.Context, query string, opts search.Options) (*search.Result, error) {
			assert.Equal(t, []string{"pump-900", "vfd-200"}, opts.DocIDs)
			return &search.Result{Query: query}, nil
		},
	})

	resp := postJSON(t, srv.URL+"/v1/search", map[string]any{
		"query": "impeller torque", "doc_ids": []string{"pump-900", "vfd-200"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestIngestSubmitsJob(t *testing.T) {
	srv := testServer(t, Deps{})

	resp := postJSON(t, srv.URL+"/v1/ingest", map[string]any{
		"doc_id": "pump-900", "pdf_path": "data/pump-900.pdf",
	})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])
	assert.NotEmpty(t, body["id"])

	jobID := body["id"].(string)
	getResp, err := http.Get(srv.URL + "/v1/jobs/" + jobID)
	require.NoError(t, err)
	getBody := decodeBody(t, getResp)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, "pump-900", getBody["doc_id"])

	listResp, err := http.Get(srv.URL + "/v1/jobs")
	require.NoError(t, err)
	listBody := decodeBody(t, listResp)
	assert.Len(t, listBody["jobs"], 1)
}

func TestIngestRejectsMissingFields(t *testing.T) {
	srv := testServer(t, Deps{})

	resp := postJSON(t, srv.URL+"/v1/ingest", map[string]any{"doc_id": "pump-900"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetJobNotFound(t *testing.T) {
	srv := testServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/v1/jobs/unknown-id")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestEval(t *testing.T) {
	var got eval.Options
	srv := testServer(t, Deps{
		Eval: func(_ context.Context, opts eval.Options) (*eval.Summary, error) {
			got = opts
			return &eval.Summary{TotalQuestions: 4, PassedQuestions: 3, FailedQuestions: 1, PassRate: 75.0}, nil
		},
	})

	resp := postJSON(t, srv.URL+"/v1/eval", map[string]any{"doc_id": "pump-900", "limit": 4})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 75.0, body["pass_rate"])
	assert.Equal(t, "pump-900", got.DocIDFilter)
	assert.Equal(t, 4, got.Limit)
	assert.Equal(t, 6, got.TopN, "defaults to configured top_n")
	assert.NotEmpty(t, got.CatalogPath)
}
