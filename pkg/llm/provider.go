package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedProvider is returned when a provider name from
// configuration has no implementation. It is fatal at conversation-run
// setup and must not be retried.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// Provider is an interface for LLM API providers.
type Provider interface {
	// Chat makes a chat completion call with optional tools.
	Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// Provider returns the provider name.
	Provider() string
}

// Factory creates providers from profiles.
type Factory struct{}

// NewProvider creates an LLM provider for the given profile. Unknown
// provider names return ErrUnsupportedProvider.
func (f *Factory) NewProvider(profile Profile) (Provider, error) {
	switch profile.Provider {
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, profile.Provider)
	}
}
