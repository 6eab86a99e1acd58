package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"sdsdg/internal/types"
)

// OpenAIClient implements Transport using OpenAI's chat completions API or any
// compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	config *Config
	logger *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(config *Config, logger *zap.Logger) *OpenAIClient {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.Named("openai"),
	}
}

// Complete implements Transport.
func (c *OpenAIClient) Complete(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error) {
	chat := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chat[i] = openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: float32(c.config.Temperature),
		MaxTokens:   maxOutputTokens,
		Messages:    chat,
	})
	if err != nil {
		return "", ClassifyError(fmt.Errorf("OpenAI API error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeResponse, "no choices in response", true, nil)
	}

	c.logger.Debug("completion received",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

func openAIRole(r types.Role) string {
	switch r {
	case types.RoleSystem:
		return openai.ChatMessageRoleSystem
	case types.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
