package llm

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config represents the configuration for LLM integration
type Config struct {
	// Provider specifies which LLM provider to use ("openai" or "anthropic")
	Provider string `json:"provider" yaml:"provider"`

	APIKey string `json:"-" yaml:"-"`

	// Model specifies which model to use (e.g., "gpt-4o")
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the provider endpoint, e.g. for OpenAI-compatible servers
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Temperature controls the randomness of the output (0.0 to 1.0)
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// ContextWindow is the total number of tokens the model accepts per call
	ContextWindow int `json:"context_window" yaml:"context_window"`

	// MaxOutputTokens limits the length of the generated response
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// NewDefaultConfig returns a default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Provider:        ProviderOpenAI,
		Model:           "gpt-4o-mini",
		Temperature:     0.7,
		ContextWindow:   128000,
		MaxOutputTokens: 4096,
	}
}

// InputBudget returns the tokens left for the prompt once the output is reserved.
func (c *Config) InputBudget() int {
	return c.ContextWindow - c.MaxOutputTokens
}
