package config

import (
	"fmt"
	"os"
)

// ValidateAPIKeys checks that the environment carries the API key the
// configured provider needs.
func ValidateAPIKeys(lc LLMConfig) error {
	switch lc.Provider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI provider")
		}
	case "claude":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required for Claude provider")
		}
	case "gemini":
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY environment variable is required for Gemini provider")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", lc.Provider)
	}
	return nil
}
