// Package llmfactory creates LLM adapters from configuration.
package llmfactory

import (
	"context"
	"fmt"
	"os"

	"github.com/jaimegago/scribe/internal/config"
	"github.com/jaimegago/scribe/internal/llm"
	"github.com/jaimegago/scribe/internal/llm/claude"
	"github.com/jaimegago/scribe/internal/llm/gemini"
	"github.com/jaimegago/scribe/internal/llm/openai"
)

// NewAdapter creates an LLMAdapter from an LLMConfig.
// It validates that the required API key environment variable is set
// before creating the provider client.
func NewAdapter(ctx context.Context, lc config.LLMConfig) (llm.LLMAdapter, error) {
	switch lc.Provider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set (required for provider %q)", lc.Provider)
		}
		return openai.NewClient(lc.Model)
	case "claude":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set (required for provider %q)", lc.Provider)
		}
		return claude.NewClient(lc.Model)
	case "gemini":
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY must be set (required for provider %q)", lc.Provider)
		}
		return gemini.NewClient(ctx, lc.Model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q (supported: openai, claude, gemini)", lc.Provider)
	}
}
