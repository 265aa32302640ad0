package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldscope/manualqa/internal/llm"
)

// Tool names the planners may emit.
const (
	ToolSearchEvidence = "search_evidence"
	ToolDraftAnswer    = "draft_answer"
)

// Planner proposes a bounded tool plan for a query.
type Planner interface {
	Plan(ctx context.Context, query string, budget int) ([]PlanStep, error)
}

// HeuristicPlanner builds a deterministic plan with no model call. It
// always searches first, adds a modality-focused search for visual or
// table hints and a second search for comparisons when the budget
// allows, and drafts last.
type HeuristicPlanner struct{}

var _ Planner = (*HeuristicPlanner)(nil)

var comparisonMarkers = []string{"compare", "difference", " versus ", " vs "}

var tableMarkers = []string{"table", "chart", "specification"}

var figureMarkers = []string{"diagram", "figure", "wiring", "schematic", "drawing", "illustration"}

// Plan returns at most budget steps.
func (p *HeuristicPlanner) Plan(_ context.Context, query string, budget int) ([]PlanStep, error) {
	if budget < 1 {
		budget = 1
	}
	steps := []PlanStep{{
		StepID:    "step_1",
		ToolName:  ToolSearchEvidence,
		Objective: "Retrieve top evidence for the query.",
		Args:      map[string]any{"query": query},
	}}

	lower := strings.ToLower(query)
	if modality := hintedModality(lower); modality != "" && budget >= 3 {
		steps = append(steps, PlanStep{
			StepID:    fmt.Sprintf("step_%d", len(steps)+1),
			ToolName:  ToolSearchEvidence,
			Objective: fmt.Sprintf("Retrieve %s evidence for the query.", modality),
			Args:      map[string]any{"query": query},
		})
	}

	comparison := false
	for _, marker := range comparisonMarkers {
		if strings.Contains(lower, marker) {
			comparison = true
			break
		}
	}
	if comparison && budget >= 3 {
		steps = append(steps, PlanStep{
			StepID:    fmt.Sprintf("step_%d", len(steps)+1),
			ToolName:  ToolSearchEvidence,
			Objective: "Retrieve evidence for the second comparison target.",
			Args:      map[string]any{"query": query},
		})
	}
	if len(steps) < budget {
		steps = append(steps, PlanStep{
			StepID:    fmt.Sprintf("step_%d", len(steps)+1),
			ToolName:  ToolDraftAnswer,
			Objective: "Draft the grounded answer from retrieved evidence.",
			Args:      map[string]any{"query": query},
		})
	}
	if len(steps) > budget {
		steps = steps[:budget]
	}
	return steps, nil
}

// hintedModality reports which evidence modality the query calls out,
// or empty when it names none.
func hintedModality(lowerQuery string) string {
	for _, marker := range figureMarkers {
		if strings.Contains(lowerQuery, marker) {
			return "figure"
		}
	}
	for _, marker := range tableMarkers {
		if strings.Contains(lowerQuery, marker) {
			return "table"
		}
	}
	return ""
}

// LLMPlanner asks the chat model for a JSON plan and falls back to the
// heuristic planner whenever the model fails or emits garbage.
type LLMPlanner struct {
	client   llm.Client
	fallback *HeuristicPlanner
	logger   *slog.Logger
}

var _ Planner = (*LLMPlanner)(nil)

// NewLLMPlanner creates a model-backed planner.
func NewLLMPlanner(client llm.Client, logger *slog.Logger) *LLMPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMPlanner{client: client, fallback: &HeuristicPlanner{}, logger: logger}
}

const plannerSystemPrompt = `You plan tool calls for a manual-QA agent.
Available tools: search_evidence (args: query), draft_answer (args: query).
Reply with JSON only, an array of steps:
[{"step_id":"step_1","tool_name":"search_evidence","objective":"...","args":{"query":"..."}}]`

type plannedStepRow struct {
	StepID    string         `json:"step_id"`
	ToolName  string         `json:"tool_name"`
	Objective string         `json:"objective"`
	Args      map[string]any `json:"args"`
}

// Plan generates a plan via the model, skipping malformed rows.
func (p *LLMPlanner) Plan(ctx context.Context, query string, budget int) ([]PlanStep, error) {
	out, err := p.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\nPlan at most %d steps.", query, budget)},
	}, llm.ChatOptions{Temperature: 0.0})
	if err != nil {
		p.logger.Warn("llm planner failed, using heuristic plan", "error", err)
		return p.fallback.Plan(ctx, query, budget)
	}

	raw := llm.ExtractJSONArray(out)
	if raw == "" {
		p.logger.Warn("llm planner output carried no JSON array, using heuristic plan")
		return p.fallback.Plan(ctx, query, budget)
	}
	var rows []plannedStepRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		p.logger.Warn("llm planner output not decodable, using heuristic plan", "error", err)
		return p.fallback.Plan(ctx, query, budget)
	}

	var steps []PlanStep
	for i, row := range rows {
		if strings.TrimSpace(row.ToolName) == "" {
			continue
		}
		step := PlanStep{
			StepID:    row.StepID,
			ToolName:  row.ToolName,
			Objective: row.Objective,
			Args:      row.Args,
		}
		if step.StepID == "" {
			step.StepID = fmt.Sprintf("step_%d", i+1)
		}
		if step.Objective == "" {
			step.Objective = "Run " + step.ToolName
		}
		if step.Args == nil {
			step.Args = map[string]any{"query": query}
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		p.logger.Warn("llm planner produced no usable steps, using heuristic plan")
		return p.fallback.Plan(ctx, query, budget)
	}
	if len(steps) > budget {
		steps = steps[:budget]
	}
	return steps, nil
}
