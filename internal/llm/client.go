// Package llm holds the chat-completion clients used by the AI field
// matcher.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/remote"
)

const (
	defaultMaxTokens = 900
	defaultTimeout   = 60 * time.Second
	maxRequestSize   = 200000 // ~200KB
)

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSON asks providers that support it for a JSON-only response.
	JSON bool
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Text string
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "anthropic", "openai" or "gemini"
	APIKey   string
	Model    string
	// Endpoint overrides the provider URL.
	Endpoint string
	Timeout  time.Duration
	Retry    remote.Retry
}

// New creates a client for cfg.Provider. Anthropic is the default.
func New(cfg Config, logger zerolog.Logger) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "anthropic"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: missing API key for %s", provider)
	}
	cfg.Model = strings.Trim(strings.TrimSpace(cfg.Model), "\"'")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	logger = logger.With().Str("provider", provider).Logger()

	switch provider {
	case "anthropic":
		return newAnthropic(cfg, hc, logger), nil
	case "openai":
		return newOpenAI(cfg, hc, logger), nil
	case "gemini":
		return newGemini(cfg, hc, logger), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic', 'openai' or 'gemini')", provider)
	}
}

// truncate bounds prompt sizes before they are sent.
func truncate(req Request, logger zerolog.Logger) Request {
	msgs := make([]Message, len(req.Messages))
	copy(msgs, req.Messages)
	for i, m := range msgs {
		if len(m.Content) > maxRequestSize {
			logger.Warn().Int("message_idx", i).Int("size", len(m.Content)).Msg("message too large, truncating")
			msgs[i].Content = m.Content[:maxRequestSize] + "... [truncated]"
		}
	}
	req.Messages = msgs
	if len(req.System) > maxRequestSize {
		logger.Warn().Int("size", len(req.System)).Msg("system prompt too large, truncating")
		req.System = req.System[:maxRequestSize] + "... [truncated]"
	}
	return req
}
