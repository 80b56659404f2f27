// Package gemini implements the LLMAdapter interface using Google's
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/generative-ai-go/genai"
	"github.com/jaimegago/scribe/internal/llm"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client implements the LLMAdapter interface using Google's Gemini API
type Client struct {
	client *genai.Client
	model  string
}

// APIError represents an error from the Gemini API with structured details
type APIError struct {
	Code    int    // HTTP status code
	Message string // Raw API error message
	Err     error
}

func (e *APIError) Error() string { return e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// APICode returns the HTTP status code from the API
func (e *APIError) APICode() int { return e.Code }

// APIMessage returns the raw error message from the API
func (e *APIError) APIMessage() string { return e.Message }

// NewClient creates a new Gemini client
// API key is read from GEMINI_API_KEY or GOOGLE_API_KEY environment variable
func NewClient(ctx context.Context, model string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-flash"
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// Chat sends a chat request and returns a response
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := c.client.GenerativeModel(c.model)

	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		model.Temperature = &temp
	}

	if len(req.Tools) > 0 {
		tools := make([]*genai.Tool, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertToolDefinition(tool))
		}
		model.Tools = tools
	}

	// Build conversation history; Gemini wants the final user-side
	// message passed to SendMessage rather than in the history.
	var history []*genai.Content
	var lastParts []genai.Part

	for i, msg := range req.Messages {
		var parts []genai.Part
		var role string

		switch {
		case msg.Role == llm.RoleAssistant:
			role = "model"
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			// Include FunctionCall parts so Gemini sees its own tool calls in history
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, genai.FunctionCall{
					Name: tc.Name,
					Args: args,
				})
			}
		case msg.ToolResultID != "":
			role = "user"
			var responseData map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &responseData); err != nil {
				// If content isn't valid JSON, wrap it
				responseData = map[string]any{"result": msg.Content}
			}
			parts = append(parts, genai.FunctionResponse{
				Name:     msg.ToolName,
				Response: responseData,
			})
		default:
			role = "user"
			parts = append(parts, genai.Text(msg.Content))
		}

		if i == len(req.Messages)-1 && role == "user" {
			lastParts = parts
			break
		}

		if len(parts) > 0 {
			history = append(history, &genai.Content{
				Parts: parts,
				Role:  role,
			})
		}
	}

	chat := model.StartChat()
	chat.History = history

	if lastParts == nil {
		lastParts = []genai.Part{genai.Text("")}
	}
	resp, err := chat.SendMessage(ctx, lastParts...)
	if err != nil {
		return nil, enhanceError(err)
	}

	return convertResponse(resp), nil
}

// convertToolDefinition converts our tool definition to Gemini format
func convertToolDefinition(tool llm.ToolDefinition) *genai.Tool {
	properties := make(map[string]*genai.Schema)
	for name, prop := range tool.Parameters.Properties {
		properties[name] = propertyToSchema(prop)
	}

	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: properties,
					Required:   tool.Parameters.Required,
				},
			},
		},
	}
}

func propertyToSchema(prop llm.Property) *genai.Schema {
	schemaType := genai.TypeString
	switch prop.Type {
	case "string":
		schemaType = genai.TypeString
	case "number":
		schemaType = genai.TypeNumber
	case "integer":
		schemaType = genai.TypeInteger
	case "boolean":
		schemaType = genai.TypeBoolean
	case "array":
		schemaType = genai.TypeArray
	case "object":
		schemaType = genai.TypeObject
	}

	s := &genai.Schema{
		Type:        schemaType,
		Description: prop.Description,
	}
	if prop.Items != nil {
		s.Items = propertyToSchema(*prop.Items)
	}
	return s
}

// convertResponse converts Gemini response to our response format.
// Gemini does not assign tool call ids, so synthetic ones are minted;
// they only need to be stable within a single response.
func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}
	if resp.UsageMetadata != nil {
		result.Usage = llm.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				result.Content += string(v)
			case genai.FunctionCall:
				raw, err := json.Marshal(v.Args)
				if err != nil {
					raw = []byte("{}")
				}
				result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
					ID:        v.Name + "_" + strconv.Itoa(len(result.ToolCalls)),
					Name:      v.Name,
					Arguments: string(raw),
				})
			}
		}
	}

	return result
}

// enhanceError provides better error messages for common API errors
// Returns *APIError with structured details for classification
func enhanceError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		var enhancedErr error
		switch apiErr.Code {
		case 403:
			enhancedErr = fmt.Errorf("authentication failed with Gemini API: %s (check GEMINI_API_KEY)", apiErr.Message)
		case 429:
			enhancedErr = fmt.Errorf("rate limit exceeded for Gemini API: %s", apiErr.Message)
		default:
			enhancedErr = fmt.Errorf("gemini API error (%d): %s", apiErr.Code, apiErr.Message)
		}
		return &APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Err:     enhancedErr,
		}
	}
	return fmt.Errorf("gemini API call failed: %w", err)
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}
