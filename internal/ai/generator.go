package ai

import (
	"context"
	"errors"
	"fmt"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Outcome sentinels. Callers rely on this split: a cancelled call must never
// be mistaken for a backend outage, and vice versa.
var (
	ErrCancelled   = errors.New("generation cancelled")
	ErrUnavailable = errors.New("generation backend unavailable")
)

// Generator produces an assistant reply for an ordered role/content sequence.
// Implementations must honor ctx cancellation and report it as ErrCancelled.
type Generator interface {
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
	Model() string
}

// NewGenerator selects a backend by provider name.
func NewGenerator(provider string, cfg ChatConfig) (Generator, error) {
	switch provider {
	case "ollama":
		return NewOllamaClient(cfg), nil
	case "openai":
		return NewOpenAICompatibleClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// classifyTransportErr folds a failed HTTP round trip into the outcome
// taxonomy. Context cancellation surfaces through the transport error chain.
func classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
