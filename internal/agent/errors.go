package agent

import "fmt"

// ErrorKind classifies the failure modes of the agent loop and tool
// execution. Tool-level kinds are recovered by feeding the error back
// to the LLM; session-level kinds terminate the run.
type ErrorKind string

const (
	// KindArgParse: the LLM emitted invalid JSON for tool arguments.
	KindArgParse ErrorKind = "arg_parse_error"

	// KindUnknownTool: the LLM named a tool absent from the registry.
	KindUnknownTool ErrorKind = "unknown_tool"

	// KindSchemaViolation: resolved arguments failed the tool's
	// parameter schema.
	KindSchemaViolation ErrorKind = "schema_violation"

	// KindToolExecution: the tool's executor returned an error.
	KindToolExecution ErrorKind = "tool_execution_error"

	// KindRateLimit: the provider kept returning 429 past the retry
	// budget.
	KindRateLimit ErrorKind = "rate_limit_error"

	// KindRateLimitTimeout: no admission slot within the configured
	// timeout.
	KindRateLimitTimeout ErrorKind = "rate_limit_timeout"

	// KindCancelled: the caller's cancellation signal fired.
	KindCancelled ErrorKind = "cancelled"

	// KindLLMFailure: the provider failed for a reason other than rate
	// limiting, past the controller's retry.
	KindLLMFailure ErrorKind = "llm_failure"
)

// CallError wraps an underlying error with its taxonomy kind.
type CallError struct {
	Kind ErrorKind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError builds a classified error.
func NewCallError(kind ErrorKind, err error) *CallError {
	return &CallError{Kind: kind, Err: err}
}
