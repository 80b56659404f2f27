// Package agent implements the agentic loop that turns a report prompt
// into an HTML artifact: compose messages, call the LLM through the
// rate controller, execute the tool calls it emits, and feed bounded
// result summaries back until the model answers with content.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaimegago/scribe/internal/llm"
	"github.com/jaimegago/scribe/internal/ratelimit"
	"github.com/jaimegago/scribe/internal/tools"
)

// DefaultMaxIterations caps the number of LLM turns per run.
const DefaultMaxIterations = 15

// IterationCapArtifact is the artifact returned when the model never
// produced a final answer within the iteration budget.
const IterationCapArtifact = "<p>Report generation stopped: the iteration limit was reached before the model produced a final document.</p>"

const defaultSystemPrompt = `You are a report generation assistant. You analyze issue tracker data and produce report sections as clean HTML fragments (no <html> or <body> wrappers).

Use the available tools to fetch and shape data. Reference a previous tool result in a later call by passing the string "$<blackboard_key>"; every successful call is stored under result_<iteration>_<tool_name>, and store_result saves a value under a name you choose.

When the data is ready, reply with the final HTML fragment as plain message content and no further tool calls.`

// LLMCaller is the rate-controlled LLM surface the driver talks to.
// *ratelimit.Controller implements it.
type LLMCaller interface {
	CallLLM(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Config holds the driver's loop parameters.
type Config struct {
	MaxIterations int
	Temperature   float64
	SystemPrompt  string

	// SummaryMaxChars bounds tool-result summaries fed to the LLM.
	SummaryMaxChars int

	// NonCacheableTools lists tool names excluded from blackboard
	// auto-capture.
	NonCacheableTools []string

	// SessionTools, when set, registers per-run tools on the session's
	// registry clone. Used to give each run its own issue cache.
	SessionTools func(*tools.Registry)
}

// RunRequest is one report prompt plus its structured context.
type RunRequest struct {
	Prompt  string
	Context map[string]any
}

// RunResult is the outcome of a run. On failure Err carries the
// classified terminal error and Artifact is empty; the partial
// transcript and history are returned either way.
type RunResult struct {
	Success    bool
	Artifact   string
	History    []HistoryRecord
	Transcript []llm.Message
	Iterations int
	LLMCalls   int
	Tokens     llm.TokenUsage
	Elapsed    time.Duration
	Err        *CallError
}

// Driver runs the agentic loop. One driver serves many runs; each run
// gets its own session and a session-scoped registry clone.
type Driver struct {
	caller   LLMCaller
	registry *tools.Registry
	logger   *slog.Logger
	cfg      Config
}

// NewDriver creates a driver over a shared registry and a
// rate-controlled LLM caller.
func NewDriver(caller LLMCaller, registry *tools.Registry, cfg Config, logger *slog.Logger) *Driver {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		caller:   caller,
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes the agentic loop for one prompt and returns its result.
func (d *Driver) Run(ctx context.Context, req RunRequest) RunResult {
	start := time.Now()
	session := NewSession()

	registry := d.registry.Clone()
	if d.cfg.SessionTools != nil {
		d.cfg.SessionTools(registry)
	}
	registry.MustRegister(storeResultTool(session.Blackboard))
	engine := NewEngine(registry, NewSummarizer(d.cfg.SummaryMaxChars), d.logger, d.cfg.NonCacheableTools)

	session.AddMessage(llm.Message{Role: llm.RoleUser, Content: userMessage(req)})

	var result RunResult
	terminated := false
	for iteration := 1; iteration <= d.cfg.MaxIterations; iteration++ {
		session.Iteration = iteration

		if err := ctx.Err(); err != nil {
			result = d.failed(session, KindCancelled, err)
			terminated = true
			break
		}

		resp, err := d.caller.CallLLM(ctx, llm.ChatRequest{
			SystemPrompt: d.cfg.SystemPrompt,
			Messages:     session.Messages,
			Tools:        registry.Schemas(),
			Temperature:  d.cfg.Temperature,
		})
		if err != nil {
			result = d.failed(session, classifyLLMError(err), err)
			terminated = true
			break
		}
		session.AddTokenUsage(resp.Usage)
		session.AddMessage(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			d.logger.Info("run complete", "iterations", iteration, "llm_calls", session.LLMCalls, "history", len(session.History))
			result = d.finished(session, resp.Content)
			terminated = true
			break
		}

		cancelled := false
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				result = d.failed(session, KindCancelled, err)
				terminated = true
				cancelled = true
				break
			}
			outcome := engine.ExecuteCall(ctx, session, call)
			session.AddMessage(llm.Message{
				Role:         llm.RoleTool,
				ToolResultID: call.ID,
				ToolName:     call.Name,
				Content:      outcome.SummaryForLLM,
				IsError:      !outcome.Success,
			})
		}
		if cancelled {
			break
		}
	}

	if !terminated {
		d.logger.Warn("iteration cap reached", "max_iterations", d.cfg.MaxIterations, "history", len(session.History))
		result = d.finished(session, IterationCapArtifact)
	}
	result.Elapsed = time.Since(start)
	return result
}

func (d *Driver) finished(session *Session, artifact string) RunResult {
	return RunResult{
		Success:    true,
		Artifact:   artifact,
		History:    session.History,
		Transcript: session.Messages,
		Iterations: session.Iteration,
		LLMCalls:   session.LLMCalls,
		Tokens: llm.TokenUsage{
			InputTokens:  session.TotalInputTokens,
			OutputTokens: session.TotalOutputTokens,
			TotalTokens:  session.TotalTokens,
		},
	}
}

func (d *Driver) failed(session *Session, kind ErrorKind, err error) RunResult {
	d.logger.Error("run failed", "kind", string(kind), "error", err)
	result := d.finished(session, "")
	result.Success = false
	result.Artifact = ""
	result.Err = NewCallError(kind, err)
	return result
}

// userMessage concatenates the prompt text with a serialization of the
// structured context.
func userMessage(req RunRequest) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	encoded, err := json.Marshal(req.Context)
	if err != nil {
		return req.Prompt
	}
	return fmt.Sprintf("%s\n\nContext:\n%s", req.Prompt, encoded)
}

func classifyLLMError(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ratelimit.ErrAcquireTimeout):
		return KindRateLimitTimeout
	case errors.Is(err, ratelimit.ErrRetriesExhausted):
		return KindRateLimit
	default:
		return KindLLMFailure
	}
}

// storeResultTool is registered per session so the LLM can name an
// intermediate value for later $reference.
func storeResultTool(bb *Blackboard) tools.Tool {
	return &tools.FuncTool{
		ToolName:        "store_result",
		ToolDescription: "Store a value on the session blackboard under a chosen key for later $key reference.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"key":   {Type: "string", Description: "Blackboard key to store under"},
				"value": {Description: "Value to store; may itself be a $reference"},
			},
			Required: []string{"key", "value"},
		},
		SkipBlackboard: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			key, ok := args["key"].(string)
			if !ok || key == "" {
				return nil, fmt.Errorf("key must be a non-empty string")
			}
			bb.Put(key, args["value"])
			return map[string]any{"stored": key}, nil
		},
	}
}
