package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/platform/config"
)

// envConfig holds raw provider selection values.
type envConfig struct {
	Provider     string `env:"ASCENT_LEDGER_LLM_PROVIDER"`
	GeminiAPIKey string `env:"ASCENT_LEDGER_GEMINI_API_KEY"`
	GeminiModel  string `env:"ASCENT_LEDGER_GEMINI_MODEL"`
	OpenAIAPIKey string `env:"ASCENT_LEDGER_OPENAI_API_KEY"`
	OpenAIModel  string `env:"ASCENT_LEDGER_OPENAI_MODEL"`
	OpenAIURL    string `env:"ASCENT_LEDGER_OPENAI_RESPONSES_URL"`
}

// NewFromEnv selects and builds the feedback provider from the environment.
// An empty ASCENT_LEDGER_LLM_PROVIDER disables generation: the returned
// Generator reports Enabled() == false and callers persist no fog checks.
func NewFromEnv(ctx context.Context) (*Generator, error) {
	var raw envConfig
	if err := config.ParseEnv(&raw); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(raw.Provider)) {
	case "":
		return New(nil), nil
	case "gemini":
		provider, err := NewGeminiProvider(ctx, GeminiConfig{
			APIKey: raw.GeminiAPIKey,
			Model:  raw.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		return New(provider), nil
	case "openai":
		provider, err := NewOpenAIProvider(OpenAIConfig{
			ResponsesURL: raw.OpenAIURL,
			APIKey:       raw.OpenAIAPIKey,
			Model:        raw.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		return New(provider), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", raw.Provider)
	}
}
