package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// ToolFunc runs one tool call and returns a JSON-shaped payload.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDef declares a callable tool with its required argument names.
type ToolDef struct {
	Name        string
	Description string
	Required    []string
	Run         ToolFunc
}

// Executor validates and dispatches tool calls.
type Executor struct {
	tools map[string]ToolDef
	order []string
}

// NewExecutor creates an empty tool registry.
func NewExecutor() *Executor {
	return &Executor{tools: map[string]ToolDef{}}
}

// Register adds a tool. Later registrations with the same name replace
// earlier ones.
func (e *Executor) Register(def ToolDef) {
	if _, exists := e.tools[def.Name]; !exists {
		e.order = append(e.order, def.Name)
	}
	e.tools[def.Name] = def
}

// Tools lists the registered tool names in registration order.
func (e *Executor) Tools() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Execute runs one plan step. Validation failures and tool errors are
// reported on the result, never as a Go error, so the loop always
// advances.
func (e *Executor) Execute(ctx context.Context, step PlanStep) ToolResult {
	result := ToolResult{StepID: step.StepID, ToolName: step.ToolName}

	def, ok := e.tools[step.ToolName]
	if !ok {
		result.Error = fmt.Sprintf("Unknown tool: %s", step.ToolName)
		return result
	}

	args := normalizeArgs(step.Args)
	if missing := missingArgs(def.Required, args); len(missing) > 0 {
		result.Error = fmt.Sprintf("Missing required args: %s; provided keys: %s",
			strings.Join(missing, ", "), strings.Join(sortedKeys(args), ", "))
		return result
	}

	payload, err := runTool(ctx, def, args)
	if err != nil {
		result.Error = fmt.Sprintf("%s: %s; tool=%s; arg_keys=[%s]",
			qaerrors.Kind(err), err.Error(), step.ToolName, strings.Join(sortedKeys(args), ", "))
		return result
	}
	result.Output = wrapPayload(payload)
	return result
}

// runTool dispatches the tool, converting panics into errors so one
// faulty tool cannot take down the agent loop.
func runTool(ctx context.Context, def ToolDef, args map[string]any) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("tool panic: %v", r)
		}
	}()
	return def.Run(ctx, args)
}

// normalizeArgs aliases the common "input" key onto "query" so loosely
// specified plans still validate.
func normalizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if _, ok := out["query"]; !ok {
		if v, ok := out["input"]; ok {
			out["query"] = v
		}
	}
	return out
}

func missingArgs(required []string, args map[string]any) []string {
	var missing []string
	for _, name := range required {
		v, ok := args[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// wrapPayload ensures tool output is always a map for uniform tracing.
func wrapPayload(payload any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": payload}
}
