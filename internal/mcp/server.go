package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/search"
	"github.com/fieldscope/manualqa/pkg/version"
)

// AskFunc answers one question against the ingested manuals.
type AskFunc func(ctx context.Context, req answer.Request) (*answer.Response, error)

// SearchFunc runs evidence retrieval without answer composition.
type SearchFunc func(ctx context.Context, query string, opts search.Options) (*search.Result, error)

// Server bridges AI clients with the grounded QA pipeline.
type Server struct {
	mcp    *mcp.Server
	ask    AskFunc
	search SearchFunc
	jobs   *ingest.JobManager
	logger *slog.Logger

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server over the pipeline entry points.
func NewServer(ask AskFunc, searchFn SearchFunc, jobs *ingest.JobManager, logger *slog.Logger) (*Server, error) {
	if ask == nil {
		return nil, errors.New("ask function is required")
	}
	if searchFn == nil {
		return nil, errors.New("search function is required")
	}
	if jobs == nil {
		return nil, errors.New("job manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		ask:    ask,
		search: searchFn,
		jobs:   jobs,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "manualqa",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "manualqa", version.Version
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the ingested equipment manuals. Every answer carries doc/page citations; insufficient evidence yields not_found or a clarifying follow-up instead of a guess.",
	}, s.mcpAskHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_evidence",
		Description: "Retrieve ranked evidence chunks (text, table rows, figure captions, OCR, vision summaries) without composing an answer. Use to inspect what the index knows before asking.",
	}, s.mcpSearchEvidenceHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_status",
		Description: "Check ingestion job progress: queued, running, completed, or failed, with per-stage page counts.",
	}, s.mcpIngestStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "ask",
			Description: "Answer a question from the ingested equipment manuals. Every answer carries doc/page citations; insufficient evidence yields not_found or a clarifying follow-up instead of a guess.",
		},
		{
			Name:        "search_evidence",
			Description: "Retrieve ranked evidence chunks (text, table rows, figure captions, OCR, vision summaries) without composing an answer. Use to inspect what the index knows before asking.",
		},
		{
			Name:        "ingest_status",
			Description: "Check ingestion job progress: queued, running, completed, or failed, with per-stage page counts.",
		},
	}
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "ask":
		return s.handleAskTool(ctx, args)
	case "search_evidence":
		return s.handleSearchEvidenceTool(ctx, args)
	case "ingest_status":
		return s.handleIngestStatusTool(ctx, args)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleAskTool handles the ask tool invocation.
// Returns markdown-formatted results.
func (s *Server) handleAskTool(ctx context.Context, args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	req := answer.Request{Query: query}
	if docID, ok := args["doc_id"].(string); ok {
		req.DocID = docID
	}
	if topN, ok := args["top_n"].(float64); ok {
		req.TopN = clampLimit(int(topN), 6, 1, 20)
	}
	if agentic, ok := args["agentic"].(bool); ok {
		req.UseAgentic = agentic
	}

	s.logger.Info("ask started",
		slog.String("query", query),
		slog.String("doc_id", req.DocID))

	resp, err := s.ask(ctx, req)
	if err != nil {
		return "", MapError(err)
	}
	return FormatAnswer(resp), nil
}

// handleSearchEvidenceTool handles the search_evidence tool invocation.
// Returns markdown-formatted results.
func (s *Server) handleSearchEvidenceTool(ctx context.Context, args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	opts := search.Options{TopN: 6}
	if docID, ok := args["doc_id"].(string); ok {
		opts.DocID = docID
	}
	if topN, ok := args["top_n"].(float64); ok {
		opts.TopN = clampLimit(int(topN), 6, 1, 20)
	}
	if rerank, ok := args["rerank"].(bool); ok {
		opts.Rerank = rerank
	}

	result, err := s.search(ctx, query, opts)
	if err != nil {
		return "", MapError(err)
	}
	return FormatEvidence(result), nil
}

// handleIngestStatusTool handles the ingest_status tool invocation.
func (s *Server) handleIngestStatusTool(_ context.Context, args map[string]any) (*IngestStatusOutput, error) {
	if jobID, ok := args["job_id"].(string); ok && jobID != "" {
		job, found := s.jobs.Get(jobID)
		if !found {
			return nil, NewInvalidParamsError("job not found: " + jobID)
		}
		return &IngestStatusOutput{Jobs: []JobOutput{toJobOutput(job)}}, nil
	}

	jobs := s.jobs.List()
	out := &IngestStatusOutput{Jobs: make([]JobOutput, 0, len(jobs))}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, toJobOutput(job))
	}
	return out, nil
}

// mcpAskHandler is the MCP SDK handler for the ask tool.
func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, AskOutput{}, NewInvalidParamsError("query parameter is required")
	}

	req := answer.Request{
		Query:      input.Query,
		DocID:      input.DocID,
		UseAgentic: input.Agentic,
	}
	if input.TopN > 0 {
		req.TopN = clampLimit(input.TopN, 6, 1, 20)
	}

	resp, err := s.ask(ctx, req)
	if err != nil {
		return nil, AskOutput{}, MapError(err)
	}
	return nil, toAskOutput(resp), nil
}

// mcpSearchEvidenceHandler is the MCP SDK handler for the search_evidence tool.
func (s *Server) mcpSearchEvidenceHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchEvidenceInput) (
	*mcp.CallToolResult,
	SearchEvidenceOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchEvidenceOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := search.Options{
		DocID:  input.DocID,
		TopN:   6,
		Rerank: input.Rerank,
	}
	if input.TopN > 0 {
		opts.TopN = clampLimit(input.TopN, 6, 1, 20)
	}

	result, err := s.search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchEvidenceOutput{}, MapError(err)
	}
	return nil, toEvidenceOutput(result), nil
}

// mcpIngestStatusHandler is the MCP SDK handler for the ingest_status tool.
func (s *Server) mcpIngestStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, input IngestStatusInput) (
	*mcp.CallToolResult,
	*IngestStatusOutput,
	error,
) {
	args := map[string]any{}
	if input.JobID != "" {
		args["job_id"] = input.JobID
	}
	output, err := s.handleIngestStatusTool(ctx, args)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

func toAskOutput(resp *answer.Response) AskOutput {
	out := AskOutput{
		Answer:           resp.Answer,
		Status:           resp.Status,
		Confidence:       resp.Confidence,
		FollowUpQuestion: resp.FollowUpQuestion,
		Warnings:         resp.Warnings,
		Citations:        make([]CitationOutput, 0, len(resp.Citations)),
	}
	for _, c := range resp.Citations {
		out.Citations = append(out.Citations, CitationOutput{
			DocID:    c.DocID,
			Page:     c.Page,
			FigureID: c.FigureID,
			TableID:  c.TableID,
			Label:    c.Label,
		})
	}
	return out
}

func toEvidenceOutput(result *search.Result) SearchEvidenceOutput {
	out := SearchEvidenceOutput{
		Intent:  string(result.Intent),
		Results: make([]EvidenceResultOutput, 0, len(result.Hits)),
	}
	for _, hit := range result.Hits {
		out.Results = append(out.Results, EvidenceResultOutput{
			ChunkID:        hit.Chunk.ChunkID,
			DocID:          hit.Chunk.DocID,
			Page:           hit.Chunk.PageStart,
			ContentType:    string(hit.Chunk.ContentType),
			Score:          hit.Score,
			Snippet:        hit.Snippet,
			MatchedAnchors: hit.MatchedAnchors,
		})
	}
	return out
}

func toJobOutput(job ingest.Job) JobOutput {
	out := JobOutput{
		ID:             job.ID,
		DocID:          job.DocID,
		Status:         string(job.Status),
		Stage:          job.Progress.Stage,
		ProcessedPages: job.Progress.ProcessedPages,
		TotalPages:     job.Progress.TotalPages,
		Error:          job.Error,
	}
	if job.Result != nil {
		out.TotalChunks = job.Result.TotalChunks
	}
	return out
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
