// Package openai implements the LLMAdapter interface on top of the
// OpenAI chat completions API with function calling.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jaimegago/scribe/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

// Client implements the LLMAdapter interface using OpenAI's chat API
type Client struct {
	client *openai.Client
	model  string
}

// APIError represents an error from the OpenAI API with structured details
type APIError struct {
	Code    int    // HTTP status code
	Message string // Raw API error message
	Err     error
}

func (e *APIError) Error() string {
	return e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// APICode returns the HTTP status code from the API
func (e *APIError) APICode() int {
	return e.Code
}

// APIMessage returns the raw error message from the API
func (e *APIError) APIMessage() string {
	return e.Message
}

// NewClient creates a new OpenAI client
// API key is read from OPENAI_API_KEY environment variable
func NewClient(model string) (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	if model == "" {
		model = "gpt-4o"
	}

	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Chat sends a chat request and returns a response
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	// OpenAI takes the system prompt as the first message, not a
	// separate request field.
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	params := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertToolDefinition(tool))
		}
		params.Tools = tools
		params.ToolChoice = "auto"
	}

	response, err := c.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, enhanceError(err)
	}

	return convertResponse(&response), nil
}

func convertMessage(msg llm.Message) openai.ChatCompletionMessage {
	switch {
	case msg.ToolResultID != "":
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    msg.Content,
			ToolCallID: msg.ToolResultID,
			Name:       msg.ToolName,
		}
	case msg.Role == llm.RoleAssistant:
		out := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return out
	case msg.Role == llm.RoleSystem:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: msg.Content,
		}
	default:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: msg.Content,
		}
	}
}

func convertToolDefinition(tool llm.ToolDefinition) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
	}
}

func convertResponse(response *openai.ChatCompletionResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{
		Usage: llm.TokenUsage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
			TotalTokens:  response.Usage.TotalTokens,
		},
	}

	if len(response.Choices) == 0 {
		return result
	}

	choice := response.Choices[0].Message
	result.Content = choice.Content
	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result
}

// enhanceError wraps SDK errors so the rate controller can classify
// them by HTTP status rather than message text.
func enhanceError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Code:    apiErr.HTTPStatusCode,
			Message: apiErr.Message,
			Err:     fmt.Errorf("openai API call failed: %w", err),
		}
	}
	return fmt.Errorf("openai API call failed: %w", err)
}
