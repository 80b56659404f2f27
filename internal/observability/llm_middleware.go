package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaimegago/scribe/internal/llm"
)

const instrumentationName = "scribe/llm"

// LLMMiddleware instruments an LLM adapter with spans and metrics. It
// sits between the rate controller and the provider adapter so retries
// show up as individual calls.
type LLMMiddleware struct {
	adapter  llm.LLMAdapter
	provider string
	model    string

	tracer trace.Tracer

	callCounter       metric.Int64Counter
	errorCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram
	tokenCounter      metric.Int64Counter
}

// NewLLMMiddleware creates an instrumented wrapper around adapter.
func NewLLMMiddleware(adapter llm.LLMAdapter, provider, model string) (*LLMMiddleware, error) {
	meter := Meter(instrumentationName)

	callCounter, err := meter.Int64Counter(
		"llm.calls",
		metric.WithDescription("Number of LLM API calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create call counter: %w", err)
	}
	errorCounter, err := meter.Int64Counter(
		"llm.errors",
		metric.WithDescription("Number of LLM API errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	durationHistogram, err := meter.Float64Histogram(
		"llm.duration",
		metric.WithDescription("LLM API call duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	tokenCounter, err := meter.Int64Counter(
		"llm.tokens",
		metric.WithDescription("LLM token usage"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	return &LLMMiddleware{
		adapter:           adapter,
		provider:          provider,
		model:             model,
		tracer:            Tracer(instrumentationName),
		callCounter:       callCounter,
		errorCounter:      errorCounter,
		durationHistogram: durationHistogram,
		tokenCounter:      tokenCounter,
	}, nil
}

// Chat implements llm.LLMAdapter.
func (m *LLMMiddleware) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := m.tracer.Start(ctx, "llm.chat",
		trace.WithAttributes(
			attribute.String("llm.provider", m.provider),
			attribute.String("llm.model", m.model),
			attribute.Int("llm.messages.count", len(req.Messages)),
			attribute.Int("llm.tools.count", len(req.Tools)),
		),
	)
	defer span.End()

	attrs := metric.WithAttributes(
		attribute.String("provider", m.provider),
		attribute.String("model", m.model),
	)
	m.callCounter.Add(ctx, 1, attrs)

	start := time.Now()
	resp, err := m.adapter.Chat(ctx, req)
	duration := time.Since(start)

	m.durationHistogram.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.errorCounter.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	m.tokenCounter.Add(ctx, int64(resp.Usage.InputTokens),
		metric.WithAttributes(
			attribute.String("provider", m.provider),
			attribute.String("model", m.model),
			attribute.String("token_type", "input"),
		),
	)
	m.tokenCounter.Add(ctx, int64(resp.Usage.OutputTokens),
		metric.WithAttributes(
			attribute.String("provider", m.provider),
			attribute.String("model", m.model),
			attribute.String("token_type", "output"),
		),
	)

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
		attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
		attribute.Int("llm.tokens.total", resp.Usage.TotalTokens),
		attribute.Int("llm.tool_calls.count", len(resp.ToolCalls)),
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}
