package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"OWNLINGO_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"OWNLINGO_DB_MAX_CONNS" default:"8"`

	MaxConcurrentJobs int           `envconfig:"MAX_CONCURRENT_JOBS" default:"3"`
	PollInterval      time.Duration `envconfig:"JOB_POLL_INTERVAL" default:"5s"`
	EventBufferSize   int           `envconfig:"EVENT_BUFFER_SIZE" default:"256"`

	ItemMaxRetries  int           `envconfig:"ITEM_MAX_RETRIES" default:"3"`
	ItemRetryDelay  time.Duration `envconfig:"ITEM_RETRY_DELAY" default:"1s"`
	ProviderRetries int           `envconfig:"PROVIDER_RETRIES" default:"3"`

	// ProviderOrder lists fallback-chain providers, primary first.
	ProviderOrder string `envconfig:"PROVIDER_ORDER" default:"anthropic,openai,gemini"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY" default:""`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-20250514"`
	AnthropicTPM    int    `envconfig:"ANTHROPIC_TPM" default:"80000"`
	AnthropicRPM    int    `envconfig:"ANTHROPIC_RPM" default:"50"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAITPM    int    `envconfig:"OPENAI_TPM" default:"90000"`
	OpenAIRPM    int    `envconfig:"OPENAI_RPM" default:"500"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`
	GeminiTPM    int    `envconfig:"GEMINI_TPM" default:"32000"`
	GeminiRPM    int    `envconfig:"GEMINI_RPM" default:"60"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("OWNLINGO_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("OWNLINGO_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("OWNLINGO_DB_MIN_CONNS (%d) cannot exceed OWNLINGO_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be >= 1")
	}
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("JOB_POLL_INTERVAL must be >= 100ms")
	}
	if c.EventBufferSize < 1 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be >= 1")
	}
	if c.ItemMaxRetries < 0 {
		return fmt.Errorf("ITEM_MAX_RETRIES must be >= 0")
	}
	if c.ProviderRetries < 0 {
		return fmt.Errorf("PROVIDER_RETRIES must be >= 0")
	}
	if len(c.ProviderNames()) == 0 {
		return fmt.Errorf("PROVIDER_ORDER must name at least one provider")
	}
	return nil
}

// ProviderNames returns the configured fallback order, primary first.
func (c *Config) ProviderNames() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.ProviderOrder, ",")
	names := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
