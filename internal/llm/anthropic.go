package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"sdsdg/internal/types"
)

// AnthropicClient implements Transport using the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	config *Config
	logger *zap.Logger
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(config *Config, logger *zap.Logger) *AnthropicClient {
	var opts []anthropic.ClientOption
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(config.BaseURL, "/")))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(config.APIKey, opts...),
		config: config,
		logger: logger.Named("anthropic"),
	}
}

// Complete implements Transport. System messages are joined into the request's
// system prompt; consecutive turns of the same role are merged because the API
// requires alternating roles.
func (c *AnthropicClient) Complete(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error) {
	system, msgs := toAnthropicMessages(messages)
	temperature := float32(c.config.Temperature)

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   maxOutputTokens,
		System:      system,
		Messages:    msgs,
		Temperature: &temperature,
	})
	if err != nil {
		return "", ClassifyError(fmt.Errorf("Anthropic API error: %w", err))
	}

	c.logger.Debug("completion received",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Duration("elapsed", time.Since(start)))

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", NewError(ErrorTypeResponse, "no text content in response", true, nil)
}

func toAnthropicMessages(messages []types.Message) (string, []anthropic.Message) {
	var system []string
	var out []anthropic.Message
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := anthropic.RoleUser
		if m.Role == types.RoleAssistant {
			role = anthropic.RoleAssistant
		}
		text := m.Content
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, anthropic.MessageContent{Type: "text", Text: &text})
			continue
		}
		out = append(out, anthropic.Message{Role: role, Content: []anthropic.MessageContent{{Type: "text", Text: &text}}})
	}
	return strings.Join(system, "\n\n"), out
}
