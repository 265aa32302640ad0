package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/llm"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/search"
)

type scriptedPlanner struct {
	steps []PlanStep
	err   error
}

func (p *scriptedPlanner) Plan(context.Context, string, int) ([]PlanStep, error) {
	return p.steps, p.err
}

type scriptedChat struct {
	reply string
	err   error
}

func (c *scriptedChat) Chat(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
	return c.reply, c.err
}

func (c *scriptedChat) Available(context.Context) error { return nil }

func evidence(id string, score float64) search.EvidenceHit {
	return search.EvidenceHit{
		Chunk:   model.Chunk{ChunkID: id, DocID: "pump-900", PageStart: 1, ContentText: "torque 25 Nm"},
		Score:   score,
		Snippet: "torque 25 Nm " + id,
	}
}

func searchReturning(hits ...search.EvidenceHit) SearchFunc {
	return func(context.Context, string, string, int) (*search.Result, error) {
		return &search.Result{Intent: search.IntentGeneral, Hits: hits}, nil
	}
}

func TestHeuristicPlannerBasic(t *testing.T) {
	p := &HeuristicPlanner{}
	steps, err := p.Plan(context.Background(), "impeller torque?", 4)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "step_1", steps[0].StepID)
	assert.Equal(t, ToolSearchEvidence, steps[0].ToolName)
	assert.Equal(t, "Retrieve top evidence for the query.", steps[0].Objective)
	assert.Equal(t, ToolDraftAnswer, steps[1].ToolName)
}

func TestHeuristicPlannerComparisonAddsSecondSearch(t *testing.T) {
	p := &HeuristicPlanner{}
	steps, err := p.Plan(context.Background(), "pump-900 versus pump-950 seal clearance", 4)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, ToolSearchEvidence, steps[1].ToolName)
	assert.Equal(t, ToolDraftAnswer, steps[2].ToolName)
}

func TestHeuristicPlannerVisualHintAddsModalitySearch(t *testing.T) {
	p := &HeuristicPlanner{}
	steps, err := p.Plan(context.Background(), "Show the wiring diagram for the terminal block", 4)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, ToolSearchEvidence, steps[1].ToolName)
	assert.Equal(t, "Retrieve figure evidence for the query.", steps[1].Objective)
	assert.Equal(t, ToolDraftAnswer, steps[2].ToolName)

	steps, err = p.Plan(context.Background(), "Which torque table covers the impeller?", 4)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "Retrieve table evidence for the query.", steps[1].Objective)
}

func TestHeuristicPlannerVisualHintNeedsBudget(t *testing.T) {
	p := &HeuristicPlanner{}
	steps, err := p.Plan(context.Background(), "Show the wiring diagram", 2)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, ToolSearchEvidence, steps[0].ToolName)
	assert.Equal(t, ToolDraftAnswer, steps[1].ToolName)
}

func TestHeuristicPlannerComparisonNeedsBudget(t *testing.T) {
	p := &HeuristicPlanner{}
	steps, err := p.Plan(context.Background(), "compare the two models", 2)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, ToolSearchEvidence, steps[0].ToolName)
	assert.Equal(t, ToolDraftAnswer, steps[1].ToolName)
}

func TestHeuristicPlannerTruncatesToBudget(t *testing.T) {
	p := &HeuristicPlanner{}
	steps, err := p.Plan(context.Background(), "impeller torque?", 1)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, ToolSearchEvidence, steps[0].ToolName)
}

func TestLLMPlannerParsesPlan(t *testing.T) {
	chat := &scriptedChat{reply: `Plan:
[{"step_id":"step_1","tool_name":"search_evidence","objective":"find torque","args":{"query":"torque"}},
 {"tool_name":"draft_answer"},
 {"objective":"no tool, skipped"}]`}
	p := NewLLMPlanner(chat, nil)

	steps, err := p.Plan(context.Background(), "impeller torque?", 4)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "step_1", steps[0].StepID)
	assert.Equal(t, "step_2", steps[1].StepID)
	assert.Equal(t, "Run draft_answer", steps[1].Objective)
	assert.Equal(t, "impeller torque?", steps[1].Args["query"])
}

func TestLLMPlannerFallsBackOnError(t *testing.T) {
	p := NewLLMPlanner(&scriptedChat{err: errors.New("offline")}, nil)
	steps, err := p.Plan(context.Background(), "impeller torque?", 4)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, "Retrieve top evidence for the query.", steps[0].Objective)
}

func TestLLMPlannerFallsBackOnGarbage(t *testing.T) {
	p := NewLLMPlanner(&scriptedChat{reply: "I do not know."}, nil)
	steps, err := p.Plan(context.Background(), "impeller torque?", 4)
	require.NoError(t, err)
	assert.Equal(t, ToolSearchEvidence, steps[0].ToolName)
}

func TestExecutorUnknownTool(t *testing.T) {
	e := NewExecutor()
	result := e.Execute(context.Background(), PlanStep{StepID: "s1", ToolName: "teleport"})
	assert.Equal(t, "Unknown tool: teleport", result.Error)
}

func TestExecutorMissingArgs(t *testing.T) {
	e := NewExecutor()
	e.Register(ToolDef{Name: "lookup", Required: []string{"query"}, Run: func(context.Context, map[string]any) (any, error) {
		return nil, nil
	}})
	result := e.Execute(context.Background(), PlanStep{ToolName: "lookup", Args: map[string]any{"doc_id": "x", "b": 1}})
	assert.Equal(t, "Missing required args: query; provided keys: b, doc_id", result.Error)
}

func TestExecutorAliasesInputToQuery(t *testing.T) {
	e := NewExecutor()
	var got string
	e.Register(ToolDef{Name: "lookup", Required: []string{"query"}, Run: func(_ context.Context, args map[string]any) (any, error) {
		got = args["query"].(string)
		return "ok", nil
	}})
	result := e.Execute(context.Background(), PlanStep{ToolName: "lookup", Args: map[string]any{"input": "torque"}})
	assert.Empty(t, result.Error)
	assert.Equal(t, "torque", got)
	assert.Equal(t, map[string]any{"result": "ok"}, result.Output)
}

func TestExecutorToolErrorCarriesKindAndArgKeys(t *testing.T) {
	e := NewExecutor()
	e.Register(ToolDef{Name: "lookup", Required: []string{"query"}, Run: func(context.Context, map[string]any) (any, error) {
		return nil, qaerrors.ValidationError("bad input", nil)
	}})
	result := e.Execute(context.Background(), PlanStep{ToolName: "lookup", Args: map[string]any{"query": "torque", "doc_id": "pump-900"}})
	assert.True(t, strings.HasPrefix(result.Error, "InputError: "), result.Error)
	assert.Contains(t, result.Error, "; tool=lookup; arg_keys=[doc_id, query]")
}

func TestExecutorRecoversToolPanic(t *testing.T) {
	e := NewExecutor()
	e.Register(ToolDef{Name: "lookup", Required: []string{"query"}, Run: func(context.Context, map[string]any) (any, error) {
		panic("nil map write")
	}})
	result := e.Execute(context.Background(), PlanStep{ToolName: "lookup", Args: map[string]any{"query": "torque"}})
	assert.Contains(t, result.Error, "tool panic: nil map write")
	assert.Contains(t, result.Error, "; tool=lookup; arg_keys=[query]")
	assert.Nil(t, result.Output)
}

func TestRunnerCompletesPlan(t *testing.T) {
	planner := &scriptedPlanner{steps: []PlanStep{
		{StepID: "step_1", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "torque"}},
	}}
	runner := NewRunner(planner, searchReturning(evidence("a", 0.8)))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, state.TerminatedReason)
	require.Len(t, state.Hits, 1)
	assert.Equal(t, "high", state.Confidence)
	assert.Equal(t, "Plan executed with tools: search_evidence", state.Reasoning)
	assert.Contains(t, state.Draft, "torque 25 Nm a")
}

func TestRunnerEmptyPlan(t *testing.T) {
	runner := NewRunner(&scriptedPlanner{}, searchReturning())
	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonEmptyPlan, state.TerminatedReason)
	assert.Equal(t, "low", state.Confidence)
	assert.Empty(t, state.Hits)
}

func TestRunnerPrependsAutoSearch(t *testing.T) {
	planner := &scriptedPlanner{steps: []PlanStep{
		{StepID: "step_1", ToolName: ToolDraftAnswer, Args: map[string]any{"query": "torque"}},
	}}
	runner := NewRunner(planner, searchReturning(evidence("a", 0.5)))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(state.Plan), 2)
	assert.Equal(t, "auto_search", state.Plan[0].StepID)
	assert.Equal(t, ToolSearchEvidence, state.Plan[0].ToolName)
	assert.Equal(t, "Retrieve evidence before drafting the answer.", state.Plan[0].Objective)
}

func TestRunnerMaxIterations(t *testing.T) {
	steps := make([]PlanStep, 5)
	for i := range steps {
		steps[i] = PlanStep{StepID: "s", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "q"}}
	}
	runner := NewRunner(&scriptedPlanner{steps: steps}, searchReturning(evidence("a", 0.5)),
		WithLimits(Limits{MaxIterations: 2, MaxToolCalls: 10, Timeout: time.Minute}))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxIterations, state.TerminatedReason)
	assert.Len(t, state.ToolResults, 2)
}

func TestRunnerMaxToolCalls(t *testing.T) {
	steps := make([]PlanStep, 5)
	for i := range steps {
		steps[i] = PlanStep{StepID: "s", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "q"}}
	}
	runner := NewRunner(&scriptedPlanner{steps: steps}, searchReturning(evidence("a", 0.5)),
		WithLimits(Limits{MaxIterations: 10, MaxToolCalls: 3, Timeout: time.Minute}))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxToolCalls, state.TerminatedReason)
	assert.Len(t, state.ToolResults, 3)
}

func TestRunnerTimeout(t *testing.T) {
	slow := func(context.Context, string, string, int) (*search.Result, error) {
		time.Sleep(20 * time.Millisecond)
		return &search.Result{Hits: []search.EvidenceHit{evidence("a", 0.5)}}, nil
	}
	steps := make([]PlanStep, 8)
	for i := range steps {
		steps[i] = PlanStep{StepID: "s", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "q"}}
	}
	runner := NewRunner(&scriptedPlanner{steps: steps}, slow,
		WithLimits(Limits{MaxIterations: 8, MaxToolCalls: 8, Timeout: 10 * time.Millisecond}))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	assert.Equal(t, ReasonTimeout, state.TerminatedReason)
	assert.Less(t, len(state.ToolResults), 8)
}

func TestRunnerMergesHitsKeepingHigherScore(t *testing.T) {
	calls := 0
	searchFn := func(context.Context, string, string, int) (*search.Result, error) {
		calls++
		if calls == 1 {
			return &search.Result{Hits: []search.EvidenceHit{evidence("a", 0.3), evidence("b", 0.2)}}, nil
		}
		return &search.Result{Hits: []search.EvidenceHit{evidence("a", 0.7), evidence("c", 0.1)}}, nil
	}
	planner := &scriptedPlanner{steps: []PlanStep{
		{StepID: "s1", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "q"}},
		{StepID: "s2", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "q"}},
	}}
	runner := NewRunner(planner, searchFn)

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	require.Len(t, state.Hits, 3)
	assert.Equal(t, "a", state.Hits[0].Chunk.ChunkID)
	assert.Equal(t, 0.7, state.Hits[0].Score)
}

func TestRunnerDraftFailureWarnsAndFallsBack(t *testing.T) {
	planner := &scriptedPlanner{steps: []PlanStep{
		{StepID: "s1", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "q"}},
	}}
	failing := func(context.Context, string, []search.EvidenceHit) (string, error) {
		return "", errors.New("model offline")
	}
	runner := NewRunner(planner, searchReturning(evidence("a", 0.5)), WithDrafter(failing))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	require.Len(t, state.Warnings, 1)
	assert.Contains(t, state.Warnings[0], "LLM draft failed: ")
	assert.Contains(t, state.Draft, "1. torque 25 Nm a")
	assert.Equal(t, "medium", state.Confidence)
}

func TestRunnerTraceEvents(t *testing.T) {
	planner := &scriptedPlanner{steps: []PlanStep{
		{StepID: "s1", ToolName: ToolSearchEvidence, Args: map[string]any{"query": "secret question"}},
	}}
	runner := NewRunner(planner, searchReturning(evidence("a", 0.5)))

	state, err := runner.Run(context.Background(), "impeller torque?", "")
	require.NoError(t, err)
	require.Len(t, state.Trace, 3)
	assert.Equal(t, "plan_generated", state.Trace[0].Event)
	assert.Equal(t, "tool_executed", state.Trace[1].Event)
	assert.Equal(t, "graph_finalized", state.Trace[2].Event)

	// Arguments are traced as key names only.
	keys := state.Trace[1].Payload["argument_keys"].([]string)
	assert.Equal(t, []string{"query"}, keys)
}
