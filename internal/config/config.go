// Package config loads agent settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/polzovatel/form-autofill-agent/internal/llm"
)

type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	Headless  bool   `envconfig:"AGENT_HEADLESS" default:"true"`

	API      APIConfig
	AI       AIConfig
	Detect   DetectConfig
	Fill     FillConfig
	Control  ControlConfig
	Provider ProviderKeys
}

// APIConfig points at the backend serving profiles and documents.
type APIConfig struct {
	URL     string        `envconfig:"AUTOFILL_API_URL" default:""`
	Token   string        `envconfig:"AUTOFILL_API_TOKEN" default:""`
	Timeout time.Duration `envconfig:"AUTOFILL_API_TIMEOUT" default:"15s"`
}

type AIConfig struct {
	Enabled   bool          `envconfig:"AUTOFILL_AI_ENABLED" default:"false"`
	Provider  string        `envconfig:"LLM_PROVIDER" default:"anthropic"`
	Threshold float64       `envconfig:"AUTOFILL_AI_CONFIDENCE_THRESHOLD" default:"0.7"`
	Timeout   time.Duration `envconfig:"AUTOFILL_AI_TIMEOUT" default:"5s"`
}

type DetectConfig struct {
	PollInterval time.Duration `envconfig:"AUTOFILL_POLL_INTERVAL" default:"3s"`
	Debounce     time.Duration `envconfig:"AUTOFILL_DEBOUNCE" default:"250ms"`
	MaxDepth     int           `envconfig:"AUTOFILL_IMPLIED_DEPTH" default:"3"`
}

type FillConfig struct {
	BlurDelay         time.Duration `envconfig:"AUTOFILL_BLUR_DELAY" default:"100ms"`
	FileTimeout       time.Duration `envconfig:"AUTOFILL_FILE_TIMEOUT" default:"15s"`
	IndicatorDuration time.Duration `envconfig:"AUTOFILL_INDICATOR_DURATION" default:"3s"`
}

type ControlConfig struct {
	Addr string `envconfig:"AUTOFILL_CONTROL_ADDR" default:"127.0.0.1:8787"`
}

// ProviderKeys holds the credentials and model names of each LLM provider.
type ProviderKeys struct {
	AnthropicKey   string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel string `envconfig:"ANTHROPIC_MODEL"`
	OpenAIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL"`
	GeminiKey      string `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string `envconfig:"GEMINI_MODEL"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.AI.Threshold < 0 || c.AI.Threshold > 1 {
		problems = append(problems, "AUTOFILL_AI_CONFIDENCE_THRESHOLD must be within [0,1]")
	}
	if c.AI.Timeout <= 0 {
		problems = append(problems, "AUTOFILL_AI_TIMEOUT must be positive")
	}
	if c.Detect.Debounce <= 0 {
		problems = append(problems, "AUTOFILL_DEBOUNCE must be positive")
	}
	if c.Detect.PollInterval < 0 {
		problems = append(problems, "AUTOFILL_POLL_INTERVAL must not be negative")
	}
	if c.Detect.MaxDepth < 1 {
		problems = append(problems, "AUTOFILL_IMPLIED_DEPTH must be at least 1")
	}
	if c.Fill.FileTimeout <= 0 {
		problems = append(problems, "AUTOFILL_FILE_TIMEOUT must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		problems = append(problems, "LOG_FORMAT must be console or json")
	}
	if c.AI.Enabled {
		if _, err := c.LLM(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LLM returns the client settings for the selected provider.
func (c *Config) LLM() (llm.Config, error) {
	out := llm.Config{Provider: strings.ToLower(strings.TrimSpace(c.AI.Provider))}
	var keyVar string
	switch out.Provider {
	case "", "anthropic":
		out.Provider, out.APIKey, out.Model, keyVar = "anthropic", c.Provider.AnthropicKey, c.Provider.AnthropicModel, "ANTHROPIC_API_KEY"
	case "openai":
		out.APIKey, out.Model, keyVar = c.Provider.OpenAIKey, c.Provider.OpenAIModel, "OPENAI_API_KEY"
	case "gemini":
		out.APIKey, out.Model, keyVar = c.Provider.GeminiKey, c.Provider.GeminiModel, "GEMINI_API_KEY"
	default:
		return llm.Config{}, fmt.Errorf("unknown LLM_PROVIDER %q", c.AI.Provider)
	}
	if out.APIKey == "" {
		return llm.Config{}, fmt.Errorf("%s is required when AUTOFILL_AI_ENABLED is set", keyVar)
	}
	return out, nil
}

// RemoteEnabled reports whether a backend URL is configured.
func (c *Config) RemoteEnabled() bool { return strings.TrimSpace(c.API.URL) != "" }
