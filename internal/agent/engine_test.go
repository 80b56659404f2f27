package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jaimegago/scribe/internal/llm"
	"github.com/jaimegago/scribe/internal/tools"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.FuncTool{
		ToolName:        "upper",
		ToolDescription: "uppercases text",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"text": {Type: "string"},
			},
			Required: []string{"text"},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			text, ok := args["text"].(string)
			if !ok {
				return nil, errors.New("text is not a string")
			}
			return strings.ToUpper(text), nil
		},
	})
	reg.MustRegister(&tools.FuncTool{
		ToolName:        "boom",
		ToolDescription: "always fails",
		Schema:          llm.ParameterSchema{Type: "object", Properties: map[string]llm.Property{}},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("executor exploded")
		},
	})
	reg.MustRegister(&tools.FuncTool{
		ToolName:        "peek",
		ToolDescription: "returns without caching",
		Schema:          llm.ParameterSchema{Type: "object", Properties: map[string]llm.Property{}},
		SkipBlackboard:  true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return "transient", nil
		},
	})
	return reg
}

func newTestEngine(t *testing.T, reg *tools.Registry) *Engine {
	t.Helper()
	return NewEngine(reg, NewSummarizer(0), nil, nil)
}

func TestExecuteCallSuccess(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()
	session.Iteration = 1

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "upper",
		Arguments: `{"text":"hello"}`,
	})

	if !outcome.Success {
		t.Fatalf("outcome failed: %v", outcome.Err)
	}
	if outcome.Value != "HELLO" {
		t.Errorf("value = %v", outcome.Value)
	}
	if outcome.SummaryForLLM != `"HELLO"` {
		t.Errorf("summary = %s", outcome.SummaryForLLM)
	}

	if len(session.History) != 1 {
		t.Fatalf("history length = %d", len(session.History))
	}
	record := session.History[0]
	if record.CallID != "call_1" || record.Tool != "upper" || !record.Success {
		t.Errorf("record = %+v", record)
	}
	if record.Args["text"] != "hello" {
		t.Errorf("args snapshot = %v", record.Args)
	}

	stored, ok := session.Blackboard.Get("result_1_upper")
	if !ok || stored != "HELLO" {
		t.Errorf("blackboard result_1_upper = %v (found %t)", stored, ok)
	}
}

func TestExecuteCallArgParseError(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "upper",
		Arguments: `{"text": unquoted}`,
	})

	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Err.Kind != KindArgParse {
		t.Errorf("kind = %s", outcome.Err.Kind)
	}
	if !strings.Contains(outcome.SummaryForLLM, "arg_parse_error") {
		t.Errorf("summary = %s", outcome.SummaryForLLM)
	}
	if len(session.History) != 1 || session.History[0].Success {
		t.Errorf("history = %+v", session.History)
	}
}

func TestExecuteCallUnknownTool(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "does_not_exist",
		Arguments: `{}`,
	})

	if outcome.Success || outcome.Err.Kind != KindUnknownTool {
		t.Errorf("outcome = %+v", outcome)
	}
	if !errors.Is(outcome.Err, tools.ErrUnknownTool) {
		t.Errorf("expected wrapped ErrUnknownTool, got %v", outcome.Err)
	}
}

func TestExecuteCallSchemaViolation(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "upper",
		Arguments: `{"text": 42}`,
	})

	if outcome.Success || outcome.Err.Kind != KindSchemaViolation {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestExecuteCallToolExecutionError(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "boom",
		Arguments: `{}`,
	})

	if outcome.Success || outcome.Err.Kind != KindToolExecution {
		t.Errorf("outcome = %+v", outcome)
	}
	if !strings.Contains(outcome.Err.Error(), "boom") {
		t.Errorf("error not wrapped with tool name: %v", outcome.Err)
	}
	if _, ok := session.Blackboard.Get("result_0_boom"); ok {
		t.Error("failed call must not write the blackboard")
	}
}

// An unresolved reference substitutes null, records a warning, and
// skips schema validation so the tool's own null handling decides.
func TestExecuteCallUnresolvedReference(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()
	session.Iteration = 2

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "upper",
		Arguments: `{"text":"$nonexistent"}`,
	})

	// upper rejects the null itself; the engine must not abort earlier.
	if outcome.Success {
		t.Fatal("expected tool-level failure on null input")
	}
	if outcome.Err.Kind != KindToolExecution {
		t.Errorf("kind = %s, want tool_execution_error", outcome.Err.Kind)
	}

	record := session.History[0]
	if len(record.Warnings) != 1 || !strings.Contains(record.Warnings[0], "$nonexistent") {
		t.Errorf("warnings = %v", record.Warnings)
	}
	if record.Args["text"] != "$nonexistent" {
		t.Errorf("args snapshot must be pre-resolve, got %v", record.Args)
	}
}

func TestExecuteCallResolvesBlackboardReference(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()
	session.Iteration = 2
	session.Blackboard.Put("result_1_fetch", "payload")

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "upper",
		Arguments: `{"text":"$result_1_fetch"}`,
	})

	if !outcome.Success || outcome.Value != "PAYLOAD" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestExecuteCallNonCacheable(t *testing.T) {
	engine := newTestEngine(t, testRegistry(t))
	session := NewSession()
	session.Iteration = 1

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "peek",
		Arguments: `{}`,
	})
	if !outcome.Success {
		t.Fatalf("outcome failed: %v", outcome.Err)
	}
	if _, ok := session.Blackboard.Get("result_1_peek"); ok {
		t.Error("non-cacheable tool result was blackboarded")
	}
}

func TestExecuteCallConfiguredNonCacheable(t *testing.T) {
	engine := NewEngine(testRegistry(t), NewSummarizer(0), nil, []string{"upper"})
	session := NewSession()
	session.Iteration = 1

	outcome := engine.ExecuteCall(context.Background(), session, llm.ToolCall{
		ID:        "call_1",
		Name:      "upper",
		Arguments: `{"text":"hi"}`,
	})
	if !outcome.Success {
		t.Fatalf("outcome failed: %v", outcome.Err)
	}
	if _, ok := session.Blackboard.Get("result_1_upper"); ok {
		t.Error("configured non-cacheable tool result was blackboarded")
	}
}
