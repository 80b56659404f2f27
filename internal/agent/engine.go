package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jaimegago/scribe/internal/llm"
	"github.com/jaimegago/scribe/internal/tools"
)

// CallOutcome is the result of executing one tool invocation.
type CallOutcome struct {
	Success       bool
	Value         any
	SummaryForLLM string
	Err           *CallError
}

// Engine runs a single tool invocation end-to-end: parse the raw
// arguments, resolve blackboard references, validate, dispatch, then
// summarize and record. Tool-level failures are captured in the outcome
// so the driver can report them back to the LLM instead of aborting.
type Engine struct {
	registry     *tools.Registry
	summarizer   *Summarizer
	logger       *slog.Logger
	nonCacheable map[string]struct{}
}

// NewEngine creates an engine over the given registry. Tools named in
// nonCacheable are excluded from blackboard auto-capture in addition to
// any that mark themselves non-cacheable.
func NewEngine(registry *tools.Registry, summarizer *Summarizer, logger *slog.Logger, nonCacheable []string) *Engine {
	if summarizer == nil {
		summarizer = NewSummarizer(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]struct{}, len(nonCacheable))
	for _, name := range nonCacheable {
		skip[name] = struct{}{}
	}
	return &Engine{
		registry:     registry,
		summarizer:   summarizer,
		logger:       logger,
		nonCacheable: skip,
	}
}

// ExecuteCall runs one invocation against the session. It always
// appends a history record; on success it also stores the result on the
// blackboard under result_{iteration}_{name} unless the tool opts out.
func (e *Engine) ExecuteCall(ctx context.Context, session *Session, call llm.ToolCall) CallOutcome {
	args, err := parseArgs(call.Arguments)
	if err != nil {
		return e.fail(session, call, nil, nil, KindArgParse, err)
	}

	resolved, warnings := resolveReferences(args, session.Blackboard)
	resolvedArgs, ok := resolved.(map[string]any)
	if !ok {
		resolvedArgs = map[string]any{}
	}
	for _, warning := range warnings {
		e.logger.Warn("reference resolution", "tool", call.Name, "call_id", call.ID, "warning", warning)
	}

	tool, err := e.registry.Get(call.Name)
	if err != nil {
		return e.fail(session, call, args, warnings, KindUnknownTool, err)
	}

	// Null substitutions from unresolved references would trip required
	// field checks; the tool's own null handling decides the outcome
	// then.
	if len(warnings) == 0 {
		if err := e.registry.ValidateArgs(call.Name, resolvedArgs); err != nil {
			return e.fail(session, call, args, warnings, KindSchemaViolation, err)
		}
	}

	value, err := tool.Execute(ctx, resolvedArgs)
	if err != nil {
		return e.fail(session, call, args, warnings, KindToolExecution, fmt.Errorf("tool %s: %w", call.Name, err))
	}

	summary := e.summarize(tool, value)
	session.AddRecord(HistoryRecord{
		CallID:   call.ID,
		Tool:     call.Name,
		Args:     args,
		Success:  true,
		Summary:  summary,
		Warnings: warnings,
		Value:    value,
	})

	if !e.skipBlackboard(tool) {
		key := fmt.Sprintf("result_%d_%s", session.Iteration, call.Name)
		session.Blackboard.Put(key, value)
	}

	return CallOutcome{Success: true, Value: value, SummaryForLLM: summary}
}

func (e *Engine) fail(session *Session, call llm.ToolCall, args map[string]any, warnings []string, kind ErrorKind, err error) CallOutcome {
	callErr := NewCallError(kind, err)
	e.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "kind", string(kind), "error", err)

	session.AddRecord(HistoryRecord{
		CallID:   call.ID,
		Tool:     call.Name,
		Args:     args,
		Success:  false,
		Err:      callErr.Error(),
		Warnings: warnings,
	})
	return CallOutcome{
		Success:       false,
		SummaryForLLM: errorSummary(kind, err),
		Err:           callErr,
	}
}

func (e *Engine) summarize(tool tools.Tool, value any) string {
	if custom, ok := tools.CustomSummary(tool, value); ok {
		return custom
	}
	return e.summarizer.Summarize(value)
}

func (e *Engine) skipBlackboard(tool tools.Tool) bool {
	if tools.IsNonCacheable(tool) {
		return true
	}
	_, ok := e.nonCacheable[tool.Name()]
	return ok
}

func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// errorSummary renders a tool failure as the JSON the LLM sees in the
// tool-result message.
func errorSummary(kind ErrorKind, err error) string {
	encoded, marshalErr := json.Marshal(map[string]string{
		"error":   string(kind),
		"message": err.Error(),
	})
	if marshalErr != nil {
		return fmt.Sprintf(`{"error":%q}`, kind)
	}
	return string(encoded)
}
