// Package config loads the application configuration.
// Values come from a YAML file with environment variable overrides. Secrets
// (API keys, database passwords) only come from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config/config.yaml"

// Config holds the application configuration.
type Config struct {
	Connections []ConnectionConfig `yaml:"connections"`
	LLM         LLMConfig          `yaml:"llm"`
	Generation  GenerationConfig   `yaml:"generation"`
	Logging     LoggingConfig      `yaml:"logging"`
	Output      OutputConfig       `yaml:"output"`
}

// ConnectionConfig describes one named database connection.
type ConnectionConfig struct {
	Name     string `yaml:"name"`
	Dialect  string `yaml:"dialect"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	// Schema is the namespace to introspect; dialects pick their own default.
	Schema  string            `yaml:"schema"`
	SSLMode string            `yaml:"ssl_mode"`
	Params  map[string]string `yaml:"params"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
	Password    string `yaml:"-"`
}

// LLMConfig selects the model provider. The API key is read from
// OPENAI_API_KEY or ANTHROPIC_API_KEY depending on the provider.
type LLMConfig struct {
	Provider        string  `yaml:"provider" env:"SDSDG_LLM_PROVIDER" env-default:"openai"`
	Model           string  `yaml:"model" env:"SDSDG_LLM_MODEL" env-default:"gpt-4o-mini"`
	BaseURL         string  `yaml:"base_url" env:"SDSDG_LLM_BASE_URL" env-default:""`
	Temperature     float32 `yaml:"temperature" env:"SDSDG_LLM_TEMPERATURE" env-default:"0.7"`
	ContextWindow   int     `yaml:"context_window" env:"SDSDG_LLM_CONTEXT_WINDOW" env-default:"128000"`
	MaxOutputTokens int     `yaml:"max_output_tokens" env:"SDSDG_LLM_MAX_OUTPUT_TOKENS" env-default:"4096"`
	APIKey          string  `yaml:"-"`
}

// GenerationConfig tunes the generator.
type GenerationConfig struct {
	DefaultCount       int           `yaml:"default_count" env:"SDSDG_DEFAULT_COUNT" env-default:"10"`
	BatchSize          int           `yaml:"batch_size" env:"SDSDG_BATCH_SIZE" env-default:"20"`
	MaxAttempts        int           `yaml:"max_attempts" env:"SDSDG_MAX_ATTEMPTS" env-default:"3"`
	RetryDelay         time.Duration `yaml:"retry_delay" env:"SDSDG_RETRY_DELAY" env-default:"1s"`
	CallTimeout        time.Duration `yaml:"call_timeout" env:"SDSDG_CALL_TIMEOUT" env-default:"2m"`
	MaxInFlight        int           `yaml:"max_in_flight" env:"SDSDG_MAX_IN_FLIGHT" env-default:"4"`
	MaxReferenceValues int           `yaml:"max_reference_values" env:"SDSDG_MAX_REFERENCE_VALUES" env-default:"200"`
	// OverlengthPolicy is "truncate" or "reject".
	OverlengthPolicy string `yaml:"overlength_policy" env:"SDSDG_OVERLENGTH_POLICY" env-default:"truncate"`
	// DuplicatePolicy is "drop" or "regenerate".
	DuplicatePolicy string `yaml:"duplicate_policy" env:"SDSDG_DUPLICATE_POLICY" env-default:"drop"`
	// ConversationShare is the fraction of the input budget prior turns may use.
	ConversationShare float64 `yaml:"conversation_share" env:"SDSDG_CONVERSATION_SHARE" env-default:"0.25"`
	Language          string  `yaml:"language" env:"SDSDG_LANGUAGE" env-default:"en"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"SDSDG_LOG_LEVEL" env-default:"info"`
	LogDir string `yaml:"log_dir" env:"SDSDG_LOG_DIR" env-default:"logs"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir          string   `yaml:"dir" env:"SDSDG_OUTPUT_DIR" env-default:"output"`
	Formats      []string `yaml:"formats" env:"SDSDG_OUTPUT_FORMATS" env-default:"json"`
	ModelsDir    string   `yaml:"models_dir" env:"SDSDG_MODELS_DIR" env-default:"models"`
	ModelsFormat string   `yaml:"models_format" env:"SDSDG_MODELS_FORMAT" env-default:"gorm"`
}

// Load reads the configuration file at path, or DefaultPath when path is empty,
// applies environment overrides, resolves secrets and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at %s", path)
	}

	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg.resolveSecrets(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveSecrets fills passwords and API keys from the environment.
func (c *Config) resolveSecrets(getenv func(string) string) {
	for i := range c.Connections {
		if env := c.Connections[i].PasswordEnv; env != "" {
			c.Connections[i].Password = getenv(env)
		}
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
	default:
		c.LLM.APIKey = getenv("OPENAI_API_KEY")
	}
}

// Validate checks every connection and the generation policies.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Connections))
	for i := range c.Connections {
		conn := &c.Connections[i]
		if err := conn.Validate(); err != nil {
			return err
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connection name %q", conn.Name)
		}
		seen[conn.Name] = true
	}

	switch c.Generation.OverlengthPolicy {
	case "truncate", "reject":
	default:
		return fmt.Errorf("overlength_policy must be truncate or reject, got %q", c.Generation.OverlengthPolicy)
	}
	switch c.Generation.DuplicatePolicy {
	case "drop", "regenerate":
	default:
		return fmt.Errorf("duplicate_policy must be drop or regenerate, got %q", c.Generation.DuplicatePolicy)
	}
	if s := c.Generation.ConversationShare; s < 0 || s > 1 {
		return fmt.Errorf("conversation_share must be between 0 and 1, got %v", s)
	}
	return nil
}

// SupportedDialects lists the accepted dialect names and their aliases.
var SupportedDialects = map[string]string{
	"postgres":      "postgres",
	"postgresql":    "postgres",
	"mysql":         "mysql",
	"mysql+pymysql": "mysql",
	"sqlserver":     "sqlserver",
	"mssql":         "sqlserver",
}

// Validate checks that the connection carries everything needed to connect.
func (c *ConnectionConfig) Validate() error {
	var missing []string
	for _, f := range []struct{ key, value string }{
		{"name", c.Name},
		{"dialect", c.Dialect},
		{"database", c.Database},
		{"host", c.Host},
		{"user", c.User},
		{"password_env", c.PasswordEnv},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.key)
		}
	}
	if c.Port == 0 {
		missing = append(missing, "port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("connection %q: missing or empty values: %s", c.Name, strings.Join(missing, ", "))
	}

	if _, ok := SupportedDialects[strings.ToLower(c.Dialect)]; !ok {
		return fmt.Errorf("connection %q: dialect %q not supported, use postgres, mysql or sqlserver", c.Name, c.Dialect)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("connection %q: port must be between 1 and 65535, got %d", c.Name, c.Port)
	}
	return nil
}

// Connection returns the connection named name.
func (c *Config) Connection(name string) (*ConnectionConfig, bool) {
	for i := range c.Connections {
		if c.Connections[i].Name == name {
			return &c.Connections[i], true
		}
	}
	return nil, false
}
