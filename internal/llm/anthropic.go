package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/remote"
)

const (
	anthropicDefaultModel = "claude-sonnet-4-5-20250929"
	anthropicURL          = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
)

type anthropicClient struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
	retry    remote.Retry
	logger   zerolog.Logger
}

func newAnthropic(cfg Config, hc *http.Client, logger zerolog.Logger) *anthropicClient {
	c := &anthropicClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		http:     hc,
		retry:    cfg.Retry,
		logger:   logger,
	}
	if c.model == "" {
		c.model = anthropicDefaultModel
	}
	if c.endpoint == "" {
		c.endpoint = anthropicURL
	}
	return c
}

func (c *anthropicClient) Name() string { return c.model }

func (c *anthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}
	req = truncate(req, c.logger)

	payload := anthropicPayload{
		Model:       c.model,
		System:      req.System,
		MaxTokens:   max(req.MaxTokens, defaultMaxTokens),
		Temperature: float64(req.Temperature),
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, anthropicMessage{
			Role:    m.Role,
			Content: []anthropicContent{{Type: "text", Text: m.Content}},
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(payload.Messages)).
		Int("payload_size", len(body)).
		Int("max_tokens", payload.MaxTokens).
		Msg("Anthropic API request")

	data, err := remote.Do(ctx, c.http, c.retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
		return httpReq, nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var ar anthropicResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return Response{}, fmt.Errorf("anthropic: parse response: %w", err)
	}
	var buf strings.Builder
	for _, content := range ar.Content {
		if content.Type == "text" {
			buf.WriteString(content.Text)
		}
	}
	c.logger.Debug().Int("response_length", buf.Len()).Msg("Anthropic API success")
	return Response{Text: buf.String()}, nil
}

type anthropicPayload struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}
