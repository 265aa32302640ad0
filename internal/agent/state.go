// Package agent runs a bounded plan/execute/finalize loop over the
// retrieval tools. The graph is deterministic: a planner proposes tool
// steps, the executor runs them under iteration, tool-call, and wall
// clock budgets, and finalize drafts a grounded answer from the merged
// evidence.
package agent

import (
	"sort"
	"time"

	"github.com/fieldscope/manualqa/internal/search"
)

// Termination reasons recorded on the final state.
const (
	ReasonCompleted     = "completed"
	ReasonMaxIterations = "max_iterations"
	ReasonMaxToolCalls  = "max_tool_calls"
	ReasonTimeout       = "timeout"
	ReasonEmptyPlan     = "empty_plan"
)

// Confidence thresholds on the top merged evidence score.
const (
	highConfidenceFloor   = 0.60
	mediumConfidenceFloor = 0.35
)

// PlanStep is one tool invocation the planner proposes.
type PlanStep struct {
	StepID    string         `json:"step_id"`
	ToolName  string         `json:"tool_name"`
	Objective string         `json:"objective"`
	Args      map[string]any `json:"args,omitempty"`
}

// ToolResult records one executed step.
type ToolResult struct {
	StepID   string         `json:"step_id"`
	ToolName string         `json:"tool_name"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// TraceEvent is one entry in the run trace. Tool arguments are reduced
// to key names so query text never leaks into traces.
type TraceEvent struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Limits bound one agent run.
type Limits struct {
	MaxIterations int
	MaxToolCalls  int
	Timeout       time.Duration
}

// DefaultLimits mirrors the configured agent defaults.
func DefaultLimits() Limits {
	return Limits{MaxIterations: 4, MaxToolCalls: 6, Timeout: 30 * time.Second}
}

// Budget is the plan-length budget implied by the limits, never below 1.
func (l Limits) Budget() int {
	budget := l.MaxIterations
	if l.MaxToolCalls < budget {
		budget = l.MaxToolCalls
	}
	if budget < 1 {
		budget = 1
	}
	return budget
}

// State accumulates one run of the agent graph.
type State struct {
	Query string `json:"query"`
	DocID string `json:"doc_id,omitempty"`
	TopN  int    `json:"top_n"`

	Plan        []PlanStep           `json:"plan"`
	ToolResults []ToolResult         `json:"tool_results"`
	Hits        []search.EvidenceHit `json:"hits"`
	Trace       []TraceEvent         `json:"trace"`

	Intent             search.Intent `json:"intent,omitempty"`
	TotalChunksScanned int           `json:"total_chunks_scanned"`

	Draft            string   `json:"draft"`
	Status           string   `json:"status"`
	Confidence       string   `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	Warnings         []string `json:"warnings,omitempty"`
	TerminatedReason string   `json:"terminated_reason"`

	iterations int
	toolCalls  int
	planIndex  int
	deadline   time.Time
}

// NewState creates run state with defaults matching the retrieval
// configuration.
func NewState(query, docID string, topN int) *State {
	if topN <= 0 {
		topN = 6
	}
	return &State{Query: query, DocID: docID, TopN: topN, Status: "ok"}
}

func (s *State) addTrace(event string, payload map[string]any) {
	s.Trace = append(s.Trace, TraceEvent{Event: event, Payload: payload, Timestamp: time.Now().UTC()})
}

// ToolNames lists the tools that actually executed, in order.
func (s *State) ToolNames() []string {
	names := make([]string, 0, len(s.ToolResults))
	for _, r := range s.ToolResults {
		names = append(names, r.ToolName)
	}
	return names
}

// mergeHits folds new hits into the accumulated set, keeping the higher
// score per chunk_id, then re-sorts and caps the pool at twice top_n.
func (s *State) mergeHits(incoming []search.EvidenceHit) {
	byID := make(map[string]int, len(s.Hits))
	for i, hit := range s.Hits {
		byID[hit.Chunk.ChunkID] = i
	}
	for _, hit := range incoming {
		if i, ok := byID[hit.Chunk.ChunkID]; ok {
			if hit.Score > s.Hits[i].Score {
				s.Hits[i] = hit
			}
			continue
		}
		byID[hit.Chunk.ChunkID] = len(s.Hits)
		s.Hits = append(s.Hits, hit)
	}

	sortHits(s.Hits)
	poolCap := s.TopN * 2
	if poolCap < s.TopN {
		poolCap = s.TopN
	}
	if len(s.Hits) > poolCap {
		s.Hits = s.Hits[:poolCap]
	}
}

func sortHits(hits []search.EvidenceHit) {
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Chunk.ChunkID < hits[b].Chunk.ChunkID
	})
}

func confidenceFor(hits []search.EvidenceHit) string {
	if len(hits) == 0 {
		return "low"
	}
	top := hits[0].Score
	switch {
	case top >= highConfidenceFloor:
		return "high"
	case top >= mediumConfidenceFloor:
		return "medium"
	default:
		return "low"
	}
}
