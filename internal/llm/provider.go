package llm

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/hously/config"
)

// Provider is the contract every reasoning-model backend satisfies. All of
// the turn engine's model calls go through it; the engine never talks to an
// API directly.
type Provider interface {
	// Generate generates text for a prompt using the named model.
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns prompt/completion token usage.
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GenerateStream generates text and delivers it incrementally. onToken is
	// invoked once per token fragment in order; the full text is returned when
	// the stream completes.
	GenerateStream(ctx context.Context, prompt string, model string, options map[string]interface{}, onToken func(string)) (string, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)

	// CalculateCost calculates the cost for a given number of tokens.
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// NewProvider builds a Provider from config. Only OpenAI-compatible backends
// are supported; base_url makes any compatible endpoint usable.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	for name, p := range cfg.Providers {
		switch p.Type {
		case "openai", "":
			return NewOpenAIProvider(p), nil
		default:
			return nil, fmt.Errorf("unsupported llm provider type %q (%s)", p.Type, name)
		}
	}
	return nil, fmt.Errorf("no llm providers configured")
}
