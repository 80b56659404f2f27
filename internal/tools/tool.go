// Package tools provides the registry of operations the LLM may invoke
// and the builtin issue-analytics tool set.
package tools

import (
	"context"

	"github.com/jaimegago/scribe/internal/llm"
)

// Tool represents an executable tool that the LLM can call
type Tool interface {
	// Name returns the tool's name
	Name() string

	// Description returns a description for the LLM
	Description() string

	// Parameters returns the parameter schema
	Parameters() llm.ParameterSchema

	// Execute runs the tool with the given arguments
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// FuncTool is a Tool built from a function, with the descriptor flags
// the execution engine consults.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          llm.ParameterSchema

	// SkipBlackboard marks results that should not be auto-stored on
	// the session blackboard.
	SkipBlackboard bool

	// NoSideEffects marks tools that only derive data from their
	// inputs. Dispatch is sequential either way; the flag is metadata
	// for schedulers that may batch such calls.
	NoSideEffects bool

	// SummarizeFn, when set, replaces the default result summarizer
	// for this tool.
	SummarizeFn func(v any) (string, bool)

	Fn func(ctx context.Context, args map[string]any) (any, error)
}

func (t *FuncTool) Name() string                    { return t.ToolName }
func (t *FuncTool) Description() string             { return t.ToolDescription }
func (t *FuncTool) Parameters() llm.ParameterSchema { return t.Schema }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.Fn(ctx, args)
}

// NonCacheable reports whether the tool result is excluded from the
// blackboard.
func (t *FuncTool) NonCacheable() bool { return t.SkipBlackboard }

// SideEffectFree reports whether the tool only derives data.
func (t *FuncTool) SideEffectFree() bool { return t.NoSideEffects }

// SummarizeResult implements the optional per-tool summarizer hook.
func (t *FuncTool) SummarizeResult(v any) (string, bool) {
	if t.SummarizeFn == nil {
		return "", false
	}
	return t.SummarizeFn(v)
}

// IsNonCacheable reports whether a tool opts out of blackboard capture.
func IsNonCacheable(t Tool) bool {
	if nc, ok := t.(interface{ NonCacheable() bool }); ok {
		return nc.NonCacheable()
	}
	return false
}

// IsSideEffectFree reports whether a tool declares itself free of side
// effects.
func IsSideEffectFree(t Tool) bool {
	if sf, ok := t.(interface{ SideEffectFree() bool }); ok {
		return sf.SideEffectFree()
	}
	return false
}

// CustomSummary returns a tool-specific summary of v if the tool
// provides one.
func CustomSummary(t Tool, v any) (string, bool) {
	if cs, ok := t.(interface {
		SummarizeResult(v any) (string, bool)
	}); ok {
		return cs.SummarizeResult(v)
	}
	return "", false
}
