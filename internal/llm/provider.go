package llm

import (
	"context"
	"fmt"

	"github.com/dc-codes426/newsapi-ai/config"
)

// Provider is the interface all LLM implementations must satisfy.
type Provider interface {
	// Chat sends the conversation plus the declared tool set and returns
	// the model's reply: tool calls or final content.
	Chat(ctx context.Context, messages []Message, tools []Tool) (Reply, error)

	// WithKey returns a provider bound to a caller-supplied API key. The
	// receiver is unchanged; transports are shared.
	WithKey(apiKey string) Provider
}

// NewProvider creates a provider from configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "", "openai":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
}
