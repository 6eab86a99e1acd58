package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewTransport creates the provider transport named by config.Provider.
func NewTransport(config *Config, logger *zap.Logger) (Transport, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	switch config.Provider {
	case ProviderOpenAI, "":
		if config.APIKey == "" && config.BaseURL == "" {
			return nil, fmt.Errorf("API key is required for provider %s", ProviderOpenAI)
		}
		return NewOpenAIClient(config, logger), nil
	case ProviderAnthropic:
		if config.APIKey == "" {
			return nil, fmt.Errorf("API key is required for provider %s", ProviderAnthropic)
		}
		return NewAnthropicClient(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}
