package llm

import (
	"context"

	"sdsdg/internal/types"
)

// Transport sends one chat completion request and returns the raw reply text.
type Transport interface {
	Complete(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error)

// Complete implements Transport.
func (f TransportFunc) Complete(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error) {
	return f(ctx, messages, maxOutputTokens)
}
