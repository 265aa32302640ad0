package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/search"
)

// SearchFunc runs one evidence retrieval.
type SearchFunc func(ctx context.Context, query, docID string, topN int) (*search.Result, error)

// DraftFunc drafts an answer from evidence.
type DraftFunc func(ctx context.Context, query string, hits []search.EvidenceHit) (string, error)

// Runner drives the plan/execute/finalize graph.
type Runner struct {
	planner Planner
	search  SearchFunc
	draft   DraftFunc
	limits  Limits
	topN    int
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLimits overrides the default budgets.
func WithLimits(l Limits) RunnerOption {
	return func(r *Runner) { r.limits = l }
}

// WithDrafter installs the LLM drafting function. Without it, finalize
// falls back to numbered snippets.
func WithDrafter(d DraftFunc) RunnerOption {
	return func(r *Runner) { r.draft = d }
}

// WithTopN overrides the evidence pool target.
func WithTopN(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.topN = n
		}
	}
}

// WithRunnerLogger overrides the default logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates an agent runner over a planner and a search function.
func NewRunner(planner Planner, searchFn SearchFunc, opts ...RunnerOption) *Runner {
	r := &Runner{
		planner: planner,
		search:  searchFn,
		limits:  DefaultLimits(),
		topN:    6,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the full graph for one question.
func (r *Runner) Run(ctx context.Context, query, docID string) (*State, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, qaerrors.ValidationError("query must not be empty", nil)
	}
	state := NewState(query, docID, r.topN)
	executor := r.buildExecutor(state)

	budget := r.limits.Budget()
	plan, err := r.planner.Plan(ctx, query, budget)
	if err != nil {
		r.logger.Warn("planner failed", "error", err)
		plan = nil
	}
	if len(plan) > 0 && plan[0].ToolName != ToolSearchEvidence {
		plan = append([]PlanStep{{
			StepID:    "auto_search",
			ToolName:  ToolSearchEvidence,
			Objective: "Retrieve evidence before drafting the answer.",
			Args:      map[string]any{"query": query},
		}}, plan...)
	}
	if len(plan) > budget {
		plan = plan[:budget]
	}
	state.Plan = plan
	state.addTrace("plan_generated", map[string]any{
		"step_count": len(plan),
		"tools":      planToolNames(plan),
	})

	if len(plan) == 0 {
		state.TerminatedReason = ReasonEmptyPlan
		r.finalize(ctx, state)
		return state, nil
	}

	// The clock starts after planning so a slow planner cannot eat the
	// execution budget.
	state.deadline = time.Now().Add(r.limits.Timeout)

	for {
		if state.iterations >= r.limits.MaxIterations {
			state.TerminatedReason = ReasonMaxIterations
			break
		}
		if state.toolCalls >= r.limits.MaxToolCalls {
			state.TerminatedReason = ReasonMaxToolCalls
			break
		}
		if state.planIndex >= len(plan) {
			state.TerminatedReason = ReasonCompleted
			break
		}
		if time.Now().After(state.deadline) {
			state.TerminatedReason = ReasonTimeout
			break
		}

		step := plan[state.planIndex]
		state.planIndex++
		state.iterations++
		state.toolCalls++

		result := executor.Execute(ctx, step)
		state.ToolResults = append(state.ToolResults, result)
		state.addTrace("tool_executed", map[string]any{
			"step_id":       step.StepID,
			"tool":          step.ToolName,
			"argument_keys": sortedKeys(step.Args),
			"failed":        result.Error != "",
		})
		if result.Error != "" {
			r.logger.Warn("tool step failed", "tool", step.ToolName, "step_id", step.StepID, "error", result.Error)
		}
	}

	r.finalize(ctx, state)
	return state, nil
}

func (r *Runner) buildExecutor(state *State) *Executor {
	executor := NewExecutor()
	executor.Register(ToolDef{
		Name:        ToolSearchEvidence,
		Description: "Retrieve ranked evidence chunks for a query.",
		Required:    []string{"query"},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			q := stringArg(args, "query")
			docID := stringArg(args, "doc_id")
			if docID == "" {
				docID = state.DocID
			}
			result, err := r.search(ctx, q, docID, state.TopN)
			if err != nil {
				return nil, err
			}
			state.mergeHits(result.Hits)
			if result.Intent != "" {
				state.Intent = result.Intent
			}
			if result.TotalChunksScanned > state.TotalChunksScanned {
				state.TotalChunksScanned = result.TotalChunksScanned
			}
			return map[string]any{
				"hit_count": len(result.Hits),
				"intent":    string(result.Intent),
			}, nil
		},
	})
	executor.Register(ToolDef{
		Name:        ToolDraftAnswer,
		Description: "Draft a grounded answer from the evidence gathered so far.",
		Required:    []string{"query"},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			if r.draft == nil || len(state.Hits) == 0 {
				return map[string]any{"drafted": false}, nil
			}
			draft, err := r.draft(ctx, stringArg(args, "query"), state.Hits)
			if err != nil {
				return nil, err
			}
			state.Draft = draft
			return map[string]any{"drafted": true}, nil
		},
	})
	return executor
}

// finalize produces the draft, confidence, and reasoning on the state.
func (r *Runner) finalize(ctx context.Context, state *State) {
	if state.Draft == "" && r.draft != nil && len(state.Hits) > 0 {
		draft, err := r.draft(ctx, state.Query, state.Hits)
		if err != nil {
			state.Warnings = append(state.Warnings,
				fmt.Sprintf("LLM draft failed: %s", qaerrors.Kind(err)))
		} else {
			state.Draft = draft
		}
	}
	if state.Draft == "" && len(state.Hits) > 0 {
		state.Draft = snippetDraft(state.Hits)
	}
	if len(state.Hits) == 0 && state.Status == "ok" {
		state.Status = "not_found"
	}

	state.Confidence = confidenceFor(state.Hits)
	if state.Status != "ok" {
		state.Confidence = "low"
	}
	state.Reasoning = "Plan executed with tools: " + strings.Join(state.ToolNames(), ", ")
	state.addTrace("graph_finalized", map[string]any{
		"terminated_reason": state.TerminatedReason,
		"hit_count":         len(state.Hits),
		"confidence":        state.Confidence,
	})
}

// snippetDraft lists the top three snippets as a last-resort draft.
func snippetDraft(hits []search.EvidenceHit) string {
	limit := 3
	if len(hits) < limit {
		limit = len(hits)
	}
	var sb strings.Builder
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, hits[i].Snippet)
	}
	return strings.TrimSpace(sb.String())
}

func planToolNames(plan []PlanStep) []string {
	names := make([]string, 0, len(plan))
	for _, step := range plan {
		names = append(names, step.ToolName)
	}
	return names
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
