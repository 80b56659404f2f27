// Package claude implements the LLMAdapter interface using Anthropic's
// Claude API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jaimegago/scribe/internal/llm"
)

// Client implements the LLMAdapter interface using Anthropic's Claude API
type Client struct {
	client anthropic.Client
	model  string
}

// APIError represents an error from the Anthropic API with structured details
type APIError struct {
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string { return e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// APICode returns the HTTP status code from the API
func (e *APIError) APICode() int { return e.Code }

// APIMessage returns the raw error message from the API
func (e *APIError) APIMessage() string { return e.Message }

// NewClient creates a new Claude client
// API key is read from ANTHROPIC_API_KEY environment variable
func NewClient(model string) (*Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Chat sends a chat request and returns a response
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertToolDefinition(tool))
		}
		params.Tools = tools
	}

	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, enhanceError(err)
	}

	return convertResponse(response), nil
}

// convertMessage maps one conversation message to Anthropic's content
// block format. Tool results become user messages carrying a
// tool_result block; assistant tool calls become tool_use blocks.
func convertMessage(msg llm.Message) anthropic.MessageParam {
	switch {
	case msg.ToolResultID != "":
		return anthropic.NewUserMessage(
			anthropic.NewToolResultBlock(msg.ToolResultID, msg.Content, msg.IsError),
		)
	case msg.Role == llm.RoleAssistant:
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(""))
		}
		return anthropic.NewAssistantMessage(blocks...)
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

// convertToolDefinition converts our tool definition to Anthropic format
func convertToolDefinition(tool llm.ToolDefinition) anthropic.ToolUnionParam {
	properties := make(map[string]any, len(tool.Parameters.Properties))
	for name, prop := range tool.Parameters.Properties {
		properties[name] = propertyToMap(prop)
	}

	inputSchema := anthropic.ToolInputSchemaParam{
		Properties: properties,
	}
	if len(tool.Parameters.Required) > 0 {
		inputSchema.Required = tool.Parameters.Required
	}

	param := anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
	if param.OfTool != nil {
		param.OfTool.Description = anthropic.String(tool.Description)
	}
	return param
}

func propertyToMap(prop llm.Property) map[string]any {
	m := map[string]any{}
	if prop.Type != "" {
		m["type"] = prop.Type
	}
	if prop.Description != "" {
		m["description"] = prop.Description
	}
	if prop.Items != nil {
		m["items"] = propertyToMap(*prop.Items)
	}
	if len(prop.Enum) > 0 {
		m["enum"] = prop.Enum
	}
	return m
}

// convertResponse converts Anthropic response to our response format
func convertResponse(response *anthropic.Message) *llm.ChatResponse {
	result := &llm.ChatResponse{
		Usage: llm.TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
			TotalTokens:  int(response.Usage.InputTokens + response.Usage.OutputTokens),
		},
	}

	for _, block := range response.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			result.Content += textBlock.Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: string(toolBlock.Input),
			})
		}
	}

	return result
}

func enhanceError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			Code:    apiErr.StatusCode,
			Message: apiErr.Error(),
			Err:     fmt.Errorf("anthropic API call failed: %w", err),
		}
	}
	return fmt.Errorf("anthropic API call failed: %w", err)
}
