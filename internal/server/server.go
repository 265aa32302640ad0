// Package server exposes the QA pipeline over HTTP: health and
// contract checks, ask/search, background ingestion jobs, and golden
// evaluation runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/config"
	"github.com/fieldscope/manualqa/internal/contracts"
	"github.com/fieldscope/manualqa/internal/eval"
	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/search"
)

// AskFunc answers one question.
type AskFunc func(ctx context.Context, req answer.Request) (*answer.Response, error)

// SearchFunc runs evidence retrieval without answer composition.
type SearchFunc func(ctx context.Context, query string, opts search.Options) (*search.Result, error)

// EvalFunc runs a golden evaluation.
type EvalFunc func(ctx context.Context, opts eval.Options) (*eval.Summary, error)

// ContractsFunc validates the data contracts.
type ContractsFunc func() (*contracts.ValidationResult, error)

// Deps are the pipeline entry points the server routes to.
type Deps struct {
	Ask               AskFunc
	Search            SearchFunc
	Jobs              *ingest.JobManager
	Eval              EvalFunc
	ValidateContracts ContractsFunc
	Logger            *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
}

// New builds a server over the given pipeline dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/health/contracts", s.handleHealthContracts)

	r.Get("/answer", s.handleAnswerQuery)
	r.Get("/search", s.handleSearchQuery)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/search", s.handleSearch)
		r.Post("/ingest", s.handleIngest)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/eval", s.handleEval)
	})
	return r
}

type healthResponse struct {
	Status    string          `json:"status"`
	Contracts healthContracts `json:"contracts"`
	Config    healthConfig    `json:"config"`
}

type healthContracts struct {
	OK       bool `json:"ok"`
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`
}

type healthConfig struct {
	RetrievalTopN  int    `json:"top_n"`
	KeywordBackend string `json:"keyword_backend"`
	ChatModel      string `json:"chat_model"`
	AgentEnabled   bool   `json:"agent_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Config: healthConfig{
			RetrievalTopN:  s.cfg.Retrieval.TopN,
			KeywordBackend: s.cfg.Retrieval.KeywordBackend,
			ChatModel:      s.cfg.Ollama.ChatModel,
			AgentEnabled:   s.cfg.Agent.Enabled,
		},
	}

	result, err := s.deps.ValidateContracts()
	if err != nil {
		resp.Status = "degraded"
		s.logger.Warn("contract validation failed", "error", err)
	} else {
		resp.Contracts = healthContracts{
			OK:       result.OK(),
			Errors:   len(result.Errors),
			Warnings: len(result.Warnings),
		}
		if !result.OK() {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthContracts(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ValidateContracts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type askRequest struct {
	Query      string   `json:"query"`
	DocID      string   `json:"doc_id"`
	DocIDs     []string `json:"doc_ids"`
	TopN       int      `json:"top_n"`
	Agentic    bool     `json:"agentic"`
	Structured bool     `json:"structured"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, qaerrors.ValidationError("query must not be empty", nil))
		return
	}

	resp, err := s.deps.Ask(r.Context(), answer.Request{
		Query:                   req.Query,
		DocID:                   req.DocID,
		DocIDs:                  req.DocIDs,
		TopN:                    req.TopN,
		UseAgentic:              req.Agentic,
		EnforceStructuredOutput: req.Structured,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query  string   `json:"query"`
	DocID  string   `json:"doc_id"`
	DocIDs []string `json:"doc_ids"`
	TopN   int      `json:"top_n"`
	Rerank bool     `json:"rerank"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, qaerrors.ValidationError("query must not be empty", nil))
		return
	}

	result, err := s.deps.Search(r.Context(), req.Query, search.Options{
		DocID:  req.DocID,
		DocIDs: req.DocIDs,
		TopN:   req.TopN,
		Rerank: req.Rerank,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// queryParams reads the shared GET query-string surface. An empty q is
// allowed and flows through as an empty result downstream.
type queryParams struct {
	Query          string
	DocID          string
	DocIDs         []string
	TopN           int
	RerankPoolSize int
}

func parseQueryParams(r *http.Request) queryParams {
	q := r.URL.Query()
	p := queryParams{
		Query: strings.TrimSpace(q.Get("q")),
		DocID: strings.TrimSpace(q.Get("doc_id")),
	}
	if raw := strings.TrimSpace(q.Get("doc_ids")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				p.DocIDs = append(p.DocIDs, id)
			}
		}
	}
	if n, err := strconv.Atoi(q.Get("top_n")); err == nil && n > 0 {
		p.TopN = n
	}
	if n, err := strconv.Atoi(q.Get("rerank_pool_size")); err == nil && n > 0 {
		p.RerankPoolSize = n
	}
	return p
}

func (s *Server) handleAnswerQuery(w http.ResponseWriter, r *http.Request) {
	p := parseQueryParams(r)
	resp, err := s.deps.Ask(r.Context(), answer.Request{
		Query:  p.Query,
		DocID:  p.DocID,
		DocIDs: p.DocIDs,
		TopN:   p.TopN,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	p := parseQueryParams(r)
	result, err := s.deps.Search(r.Context(), p.Query, search.Options{
		DocID:          p.DocID,
		DocIDs:         p.DocIDs,
		TopN:           p.TopN,
		RerankPoolSize: p.RerankPoolSize,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type ingestRequest struct {
	DocID   string `json:"doc_id"`
	PDFPath string `json:"pdf_path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DocID) == "" || strings.TrimSpace(req.PDFPath) == "" {
		s.writeError(w, qaerrors.ValidationError("doc_id and pdf_path must not be empty", nil))
		return
	}

	job, err := s.deps.Jobs.Submit(req.DocID, req.PDFPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": s.deps.Jobs.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.deps.Jobs.Get(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found: " + id})
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type evalRequest struct {
	DocID string `json:"doc_id"`
	Limit int    `json:"limit"`
	TopN  int    `json:"top_n"`
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if !s.decode(w, r, &req) {
		return
	}
	topN := req.TopN
	if topN <= 0 {
		topN = s.cfg.Retrieval.TopN
	}

	summary, err := s.deps.Eval(r.Context(), eval.Options{
		CatalogPath: s.cfg.Paths.CatalogPath,
		GoldenPath:  s.cfg.Paths.GoldenPath,
		TopN:        topN,
		DocIDFilter: req.DocID,
		Limit:       req.Limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, qaerrors.ValidationError("invalid JSON body", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var qaErr *qaerrors.QAError
	if errors.As(err, &qaErr) {
		switch qaErr.Code {
		case qaerrors.ErrCodeInvalidInput:
			status = http.StatusBadRequest
		case qaerrors.ErrCodeFileNotFound:
			status = http.StatusNotFound
		case qaerrors.ErrCodeEmbedUnavailable, qaerrors.ErrCodeLLMUnavailable:
			status = http.StatusServiceUnavailable
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	payload := map[string]string{"error": err.Error()}
	if code := qaerrors.GetCode(err); code != "" {
		payload["code"] = code
	}
	s.writeJSON(w, status, payload)
}
