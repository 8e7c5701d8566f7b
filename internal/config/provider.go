package config

import (
	"fmt"
	"os"
	"time"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai-compatible"
	ProviderVertex = "vertex"
)

// ProviderConfig defines the model endpoint used by one pipeline stage
// (extractor, classifier or summarizer).
type ProviderConfig struct {
	Name        string        `mapstructure:"name"`         // Stage identifier used in logs
	Provider    string        `mapstructure:"provider"`     // "openai-compatible" or "vertex"
	Model       string        `mapstructure:"model"`        // Model name/ID
	APIKey      string        `mapstructure:"api_key"`      // API key (can be set directly or via env var)
	APIKeyEnv   string        `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURL     string        `mapstructure:"base_url"`     // Base URL for OpenAI-compatible APIs
	BaseURLEnv  string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"` // HTTP client timeout; 0 leaves it to the stage timeout
}

// ResolveEnvVars resolves environment variable references in the configuration.
// Direct values (APIKey, BaseURL) take precedence if already set.
func (c *ProviderConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}

	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// Validate checks that the provider configuration has all required fields.
func (c *ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider config: name is required")
	}
	if c.Model == "" {
		return fmt.Errorf("provider %q: model is required", c.Name)
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required", c.Name)
		}
	case ProviderVertex:
	default:
		return fmt.Errorf("provider %q: unknown provider %q", c.Name, c.Provider)
	}

	return nil
}

// ValidateWithAPIKey validates the configuration including API key requirement.
// Use this when the provider will actually be called.
func (c *ProviderConfig) ValidateWithAPIKey() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" {
		return fmt.Errorf("provider %q: api_key is required (set directly or via %s)", c.Name, c.APIKeyEnv)
	}
	return nil
}
