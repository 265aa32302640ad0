// Package answer composes grounded responses from retrieved evidence:
// grounding policy, citation construction, confidence grading, follow-up
// questions, and the structured output the golden evaluation consumes.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fieldscope/manualqa/internal/agent"
	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/search"
)

// Answer statuses.
const (
	statusOK            = "ok"
	statusNotFound      = "not_found"
	statusNeedsFollowUp = "needs_follow_up"
	statusPartial       = "partial"
)

const notFoundText = "Not found in provided manuals based on retrieved evidence."

var ambiguousHints = []string{
	"my equipment", "my unit", "my machine",
	"this equipment", "this unit",
	"it trips", "it fails", "it alarms", "it will not", "it won't",
}

// Request is one answer invocation.
type Request struct {
	Query          string
	DocID          string
	DocIDs         []string
	TopN           int
	RerankPoolSize int

	UseAgentic              bool
	EnforceStructuredOutput bool
}

// Response is the composed answer surface returned by the CLI, HTTP,
// and MCP layers.
type Response struct {
	Query              string           `json:"query"`
	Intent             string           `json:"intent"`
	Status             string           `json:"status"`
	Confidence         string           `json:"confidence"`
	Answer             string           `json:"answer"`
	FollowUpQuestion   string           `json:"follow_up_question,omitempty"`
	Warnings           []string         `json:"warnings"`
	TotalChunksScanned int              `json:"total_chunks_scanned"`
	RetrievedChunkIDs  []string         `json:"retrieved_chunk_ids"`
	Citations          []CitationOutput `json:"citations"`
	ReasoningSummary   string           `json:"reasoning_summary,omitempty"`
}

// SearchFunc runs the deterministic retrieval path.
type SearchFunc func(ctx context.Context, query string, opts search.Options) (*search.Result, error)

// DraftFunc composes answer text from evidence via the chat model.
type DraftFunc func(ctx context.Context, query string, hits []search.EvidenceHit) (string, error)

// AgentFunc runs the agentic graph.
type AgentFunc func(ctx context.Context, query, docID string) (*agent.State, error)

// Composer builds grounded answers.
type Composer struct {
	search        SearchFunc
	draft         DraftFunc
	agentRun      AgentFunc
	trace         *TraceLogger
	agentTrace    *TraceLogger
	logger        *slog.Logger
	citationFloor float64
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithDraft installs the LLM answer drafting path.
func WithDraft(d DraftFunc) ComposerOption {
	return func(c *Composer) { c.draft = d }
}

// WithAgent installs the agentic graph path.
func WithAgent(a AgentFunc) ComposerOption {
	return func(c *Composer) { c.agentRun = a }
}

// WithTrace installs the answer trace logger.
func WithTrace(t *TraceLogger) ComposerOption {
	return func(c *Composer) { c.trace = t }
}

// WithAgentTrace installs the agent trace logger.
func WithAgentTrace(t *TraceLogger) ComposerOption {
	return func(c *Composer) { c.agentTrace = t }
}

// WithCitationFloor overrides the absolute citation relevance floor.
func WithCitationFloor(min float64) ComposerOption {
	return func(c *Composer) { c.citationFloor = min }
}

// WithComposerLogger overrides the default logger.
func WithComposerLogger(l *slog.Logger) ComposerOption {
	return func(c *Composer) { c.logger = l }
}

// NewComposer creates a composer over the retrieval function.
func NewComposer(searchFn SearchFunc, opts ...ComposerOption) *Composer {
	c := &Composer{search: searchFn, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Answer runs the full composition pipeline for one question.
func (c *Composer) Answer(ctx context.Context, req Request) (*Response, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.TopN <= 0 {
		req.TopN = 6
	}

	// An empty query flows through retrieval, which yields an empty
	// general-intent result, and comes back as not_found.
	var fallbackWarnings []string
	if req.UseAgentic && c.agentRun != nil && req.Query != "" {
		resp, err := c.answerAgentic(ctx, req)
		if err == nil {
			return resp, nil
		}
		fallbackWarnings = append(fallbackWarnings,
			fmt.Sprintf("Agentic mode fallback triggered: %s. Using deterministic path.", qaerrors.Kind(err)))
		c.logAgentTrace(map[string]any{
			"event":  "agentic_fallback",
			"query":  req.Query,
			"doc_id": req.DocID,
			"error":  err.Error(),
		})
	}

	result, err := c.search(ctx, req.Query, search.Options{
		DocID:          req.DocID,
		DocIDs:         req.DocIDs,
		TopN:           req.TopN,
		RerankPoolSize: req.RerankPoolSize,
		Rerank:         req.RerankPoolSize > 0,
	})
	if err != nil {
		return nil, err
	}

	resp := c.buildResponse(ctx, buildInput{
		query:              req.Query,
		intent:             string(result.Intent),
		docID:              req.DocID,
		hits:               result.Hits,
		totalChunksScanned: result.TotalChunksScanned,
		retrievedChunkIDs:  chunkIDs(result.Hits),
		warningsSeed:       fallbackWarnings,
		useLLM:             true,
		structured:         req.EnforceStructuredOutput,
	})
	c.logAnswerTrace(req, resp, nil)
	return resp, nil
}

// answerAgentic runs the graph path. Any failure is returned so the
// caller can fall back deterministically.
func (c *Composer) answerAgentic(ctx context.Context, req Request) (*Response, error) {
	state, err := c.agentRun(ctx, req.Query, req.DocID)
	if err != nil {
		return nil, err
	}

	warningsSeed := append([]string(nil), state.Warnings...)
	if state.Status != statusOK {
		warningsSeed = append(warningsSeed, "Agentic status hint: "+state.Status)
	}
	if state.TerminatedReason != agent.ReasonCompleted {
		warningsSeed = append(warningsSeed, "Agentic run terminated: "+state.TerminatedReason)
	}

	intent := string(state.Intent)
	if intent == "" {
		intent = string(search.IntentGeneral)
	}
	resp := c.buildResponse(ctx, buildInput{
		query:              req.Query,
		intent:             intent,
		docID:              req.DocID,
		hits:               state.Hits,
		totalChunksScanned: state.TotalChunksScanned,
		retrievedChunkIDs:  chunkIDs(state.Hits),
		answerOverride:     state.Draft,
		warningsSeed:       warningsSeed,
		useLLM:             false,
		reasoning:          state.Reasoning,
		structured:         req.EnforceStructuredOutput,
	})
	c.logAnswerTrace(req, resp, map[string]any{
		"enabled":           true,
		"terminated_reason": state.TerminatedReason,
		"tool_calls":        len(state.ToolResults),
	})
	return resp, nil
}

type buildInput struct {
	query              string
	intent             string
	docID              string
	hits               []search.EvidenceHit
	totalChunksScanned int
	retrievedChunkIDs  []string
	answerOverride     string
	warningsSeed       []string
	useLLM             bool
	reasoning          string
	structured         bool
}

func (c *Composer) buildResponse(ctx context.Context, in buildInput) *Response {
	followUp := buildFollowUpQuestion(in.query, in.hits, in.docID)
	citations := buildCitations(in.hits, c.citationFloor)
	warnings := append([]string(nil), in.warningsSeed...)
	status := statusOK

	answerText := strings.TrimSpace(in.answerOverride)
	if answerText == "" {
		answerText = composeAnswerText(in.hits)
	}

	if insufficientEvidence(in.query, in.hits) {
		status = statusNotFound
		answerText = composeRelatedEvidenceText(in.hits)
		warnings = append(warnings, "Insufficient evidence to provide a grounded direct answer.")
	}
	if followUp != "" {
		status = statusNeedsFollowUp
		warnings = append(warnings, "Query appears ambiguous across manuals or equipment variants.")
	}

	if status == statusOK && in.useLLM && c.draft != nil && strings.TrimSpace(in.answerOverride) == "" {
		llmText, err := c.draft(ctx, in.query, topHits(in.hits, 12))
		if err != nil {
			c.logger.Warn("llm answer drafting failed, keeping extractive answer", "error", err)
		} else if llmText = strings.TrimSpace(llmText); llmText != "" {
			answerText = llmText
		}
	}

	if dropped := invalidCitationCount(citations); dropped > 0 {
		citations = filterValidCitations(citations)
		warnings = append(warnings, "Dropped invalid citations failing minimum schema checks.")
	}
	if status == statusOK && len(citations) == 0 {
		status = statusNotFound
		answerText = notFoundText
		warnings = append(warnings, "No citations available for grounded answer.")
	}

	if in.structured {
		answerText = formatEvalAnswer(answerText, status, in.hits, followUp, warnings)
	}

	return &Response{
		Query:              in.query,
		Intent:             in.intent,
		Status:             status,
		Confidence:         confidenceFor(in.query, in.hits, status),
		Answer:             answerText,
		FollowUpQuestion:   followUp,
		Warnings:           warnings,
		TotalChunksScanned: in.totalChunksScanned,
		RetrievedChunkIDs:  in.retrievedChunkIDs,
		Citations:          citationOutputs(citations),
		ReasoningSummary:   in.reasoning,
	}
}

// buildFollowUpQuestion asks for a document scope when the query is
// ambiguous and no doc filter was given.
func buildFollowUpQuestion(query string, hits []search.EvidenceHit, docID string) string {
	if docID != "" {
		return ""
	}

	lower := strings.ToLower(query)
	hasHint := false
	for _, hint := range ambiguousHints {
		if strings.Contains(lower, hint) {
			hasHint = true
			break
		}
	}

	docSet := map[string]bool{}
	var uniqueDocs []string
	for _, hit := range topHits(hits, 5) {
		if !docSet[hit.Chunk.DocID] {
			docSet[hit.Chunk.DocID] = true
			uniqueDocs = append(uniqueDocs, hit.Chunk.DocID)
		}
	}
	sort.Strings(uniqueDocs)

	if len(uniqueDocs) > 1 {
		preview := uniqueDocs
		if len(preview) > 3 {
			preview = preview[:3]
		}
		return fmt.Sprintf("Which manual/model should I use (%s)?", strings.Join(preview, ", "))
	}
	if hasHint {
		return "Which exact model/manual should I use for this issue?"
	}
	return ""
}

// composeAnswerText lists the top three snippets, numbered when more
// than one survives.
func composeAnswerText(hits []search.EvidenceHit) string {
	var points []string
	for _, hit := range topHits(hits, 3) {
		if snippet := strings.TrimSpace(hit.Snippet); snippet != "" {
			points = append(points, snippet)
		}
	}
	if len(points) == 0 {
		return notFoundText
	}
	if len(points) == 1 {
		return points[0]
	}
	var sb strings.Builder
	for i, point := range points {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, point)
	}
	return sb.String()
}

// composeRelatedEvidenceText summarizes the closest evidence when no
// direct answer is grounded.
func composeRelatedEvidenceText(hits []search.EvidenceHit) string {
	if len(hits) == 0 {
		return notFoundText
	}
	lines := []string{"Direct answer is not explicitly stated. Closest grounded evidence:"}
	for _, hit := range topHits(hits, 3) {
		snippet := strings.TrimSpace(hit.Snippet)
		if snippet == "" {
			continue
		}
		page := hit.Chunk.PageStart
		if page <= 0 {
			page = hit.Chunk.PageEnd
		}
		lines = append(lines, fmt.Sprintf("- p.%d: %s", page, snippet))
	}
	return strings.Join(lines, "\n")
}

// confidenceFor grades the answer: score tiers plus a reranker rescue
// into medium when lexical overlap corroborates.
func confidenceFor(query string, hits []search.EvidenceHit, status string) string {
	if status != statusOK || len(hits) == 0 {
		return "low"
	}
	best := hits[0].Score
	if best >= 0.60 {
		return "high"
	}
	if best >= 0.35 {
		return "medium"
	}

	bestRerank := 0.0
	for _, hit := range hits {
		if hit.RerankScore > bestRerank {
			bestRerank = hit.RerankScore
		}
	}
	if bestRerank >= 0.60 && aggregateOverlap(query, hits) >= 0.20 {
		return "medium"
	}
	return "low"
}

func invalidCitationCount(citations []model.Citation) int {
	n := 0
	for _, c := range citations {
		if c.DocID == "" || c.Page <= 0 {
			n++
		}
	}
	return n
}

func filterValidCitations(citations []model.Citation) []model.Citation {
	var out []model.Citation
	for _, c := range citations {
		if c.DocID != "" && c.Page > 0 {
			out = append(out, c)
		}
	}
	return out
}

func citationOutputs(citations []model.Citation) []CitationOutput {
	out := make([]CitationOutput, 0, len(citations))
	for _, c := range citations {
		out = append(out, CitationOutput{Citation: c, Label: model.FormatCitation(c)})
	}
	return out
}

func chunkIDs(hits []search.EvidenceHit) []string {
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.Chunk.ChunkID)
	}
	return ids
}

func (c *Composer) logAnswerTrace(req Request, resp *Response, agentic map[string]any) {
	if c.trace == nil {
		return
	}
	payload := map[string]any{
		"query":               resp.Query,
		"intent":              resp.Intent,
		"status":              resp.Status,
		"confidence":          resp.Confidence,
		"doc_id":              req.DocID,
		"retrieved_chunk_ids": resp.RetrievedChunkIDs,
		"citations":           resp.Citations,
		"follow_up_question":  resp.FollowUpQuestion,
	}
	if resp.ReasoningSummary != "" {
		payload["reasoning_summary"] = resp.ReasoningSummary
	}
	if agentic != nil {
		payload["agentic"] = agentic
	}
	if err := c.trace.Log(payload); err != nil {
		c.logger.Warn("answer trace write failed", "error", err)
	}
}

func (c *Composer) logAgentTrace(payload map[string]any) {
	if c.agentTrace == nil {
		return
	}
	if err := c.agentTrace.Log(payload); err != nil {
		c.logger.Warn("agent trace write failed", "error", err)
	}
}

