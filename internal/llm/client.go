package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sdsdg/internal/logger"
	"sdsdg/internal/tokens"
	"sdsdg/internal/types"
)

// Client wraps a Transport and records every interaction in the log.
type Client struct {
	transport Transport
	counter   tokens.Counter
	logger    *zap.Logger
}

// NewClient wraps transport. counter sizes prompts for the interaction log.
func NewClient(transport Transport, counter tokens.Counter, log *zap.Logger) *Client {
	if counter == nil {
		counter = tokens.Heuristic{}
	}
	return &Client{
		transport: transport,
		counter:   counter,
		logger:    log.Named("llm"),
	}
}

// Complete implements Transport.
func (c *Client) Complete(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error) {
	info, _ := GetCallInfo(ctx)
	promptTokens := 0
	for _, m := range messages {
		promptTokens += c.counter.Count(m.Content)
	}

	start := time.Now()
	response, err := c.transport.Complete(ctx, messages, maxOutputTokens)

	logger.LogLLMInteraction(c.logger, "Complete", logger.Interaction{
		CallID:        info.CallID,
		Table:         info.Table,
		Batch:         info.Batch,
		Attempt:       info.Attempt,
		Messages:      len(messages),
		PromptTokens:  promptTokens,
		ResponseBytes: len(response),
		Elapsed:       time.Since(start),
	}, err)

	if err != nil {
		return "", ClassifyError(err)
	}
	return response, nil
}
