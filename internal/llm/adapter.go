package llm

import "context"

// Message roles. Tool results reference the tool call they answer via
// ToolResultID; the pairing is enforced by the agent loop.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// LLMAdapter is the interface for AI providers (OpenAI, Claude, Gemini).
// Scribe is provider-agnostic - different providers implement this interface.
type LLMAdapter interface {
	// Chat sends a chat request and returns a response
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest represents a request to the LLM
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
}

// ChatResponse represents a response from the LLM. Content and
// ToolCalls may both be present in the same response.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// Message represents a message in the conversation
type Message struct {
	Role         string     // "system", "user", "assistant", "tool"
	Content      string     // Text content
	ToolCalls    []ToolCall // For assistant messages: the tool calls made
	ToolResultID string     // For tool result messages: references the tool call ID
	ToolName     string     // For tool result messages: the tool name (needed by Gemini)
	IsError      bool       // For tool result messages: whether the result is an error
}

// ToolCall represents a tool call from the LLM. Arguments is the raw
// JSON emitted by the provider; parsing (and parse failures) belong to
// the execution engine, not the adapter.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a tool available to the LLM
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  ParameterSchema
}

// ParameterSchema defines the structure of tool parameters in the
// JSON-schema dialect the function-calling providers consume.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter property. An empty Type places no
// constraint on the value.
type Property struct {
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"` // For array types: describes array items
	Enum        []string  `json:"enum,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// APIErrorDetails interface for errors that carry API error details.
// Adapters wrap provider SDK errors in types implementing this so the
// rate controller can classify failures by status code instead of text.
type APIErrorDetails interface {
	error
	APICode() int
	APIMessage() string
}
