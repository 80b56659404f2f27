// Package report orchestrates the agent driver, the execution cache
// and the template parser into the two user-facing operations: generate
// a report section for a prompt, and render a multi-prompt template.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaimegago/scribe/internal/agent"
	"github.com/jaimegago/scribe/internal/store"
	"github.com/jaimegago/scribe/internal/template"
)

// Runner is the agent loop surface. *agent.Driver satisfies it.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) agent.RunResult
}

// GenerateResult is one stored report section.
type GenerateResult struct {
	ExecutionID string        `json:"execution_id"`
	PromptID    int           `json:"prompt_id"`
	Artifact    string        `json:"artifact"`
	IssueCount  int           `json:"issue_count"`
	Iterations  int           `json:"iterations"`
	LLMCalls    int           `json:"llm_calls"`
	TotalTokens int           `json:"total_tokens"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// Service wires the driver to the cache.
type Service struct {
	runner Runner
	store  *store.Store
	logger *slog.Logger
}

// NewService creates a report service.
func NewService(runner Runner, st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, store: st, logger: logger}
}

// Generate runs the agent for one prompt and caches the result. The
// run's issues are extracted from its history so the cache records what
// data the report was built from.
func (s *Service) Generate(ctx context.Context, promptID int, request string, reportCtx map[string]any) (*GenerateResult, error) {
	result := s.runner.Run(ctx, agent.RunRequest{Prompt: request, Context: reportCtx})
	if !result.Success {
		return nil, fmt.Errorf("run for prompt %d failed: %w", promptID, result.Err)
	}

	issues := store.ExtractIssues(result.History)
	metadata := map[string]any{
		"iterations":   result.Iterations,
		"llm_calls":    result.LLMCalls,
		"total_tokens": result.Tokens.TotalTokens,
		"elapsed_ms":   result.Elapsed.Milliseconds(),
	}
	executionID, err := s.store.StoreRun(ctx, promptID, result.Artifact, issues, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to cache run for prompt %d: %w", promptID, err)
	}

	s.logger.Info("report generated",
		"prompt_id", promptID,
		"execution_id", executionID,
		"issues", len(issues),
		"iterations", result.Iterations,
		"elapsed", result.Elapsed,
	)
	return &GenerateResult{
		ExecutionID: executionID,
		PromptID:    promptID,
		Artifact:    result.Artifact,
		IssueCount:  len(issues),
		Iterations:  result.Iterations,
		LLMCalls:    result.LLMCalls,
		TotalTokens: result.Tokens.TotalTokens,
		Elapsed:     result.Elapsed,
	}, nil
}

// RenderTemplate expands a template against the cache and records the
// rendered report.
func (s *Service) RenderTemplate(ctx context.Context, tmpl string, overrides map[int]string) (template.Result, error) {
	result, err := template.Render(ctx, tmpl, overrides, &cacheSource{store: s.store})
	if err != nil {
		return template.Result{}, err
	}
	if _, err := s.store.SaveReport(ctx, tmpl, result.HTML, result.Missing); err != nil {
		return template.Result{}, fmt.Errorf("failed to save report: %w", err)
	}
	if len(result.Missing) > 0 {
		s.logger.Warn("template rendered with missing prompts", "missing", result.Missing)
	}
	return result, nil
}

// Latest returns the newest cached execution for a prompt, or nil.
func (s *Service) Latest(ctx context.Context, promptID int) (*store.Execution, error) {
	return s.store.LatestFor(ctx, promptID)
}

// Executions returns every cached execution for a prompt, newest first.
func (s *Service) Executions(ctx context.Context, promptID int) ([]store.Execution, error) {
	return s.store.AllFor(ctx, promptID)
}

// DeleteExecution removes one cached execution.
func (s *Service) DeleteExecution(ctx context.Context, executionID string) (bool, error) {
	return s.store.Delete(ctx, executionID)
}

// cacheSource adapts the execution cache to the template parser.
type cacheSource struct {
	store *store.Store
}

func (c *cacheSource) LatestArtifact(ctx context.Context, promptID int) (string, bool, error) {
	exec, err := c.store.LatestFor(ctx, promptID)
	if err != nil {
		return "", false, err
	}
	if exec == nil {
		return "", false, nil
	}
	return exec.Artifact, true, nil
}
