package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/remote"
)

const (
	openAIDefaultModel = "gpt-4o-mini"
	openAIURL          = "https://api.openai.com/v1/chat/completions"
)

type openAIClient struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
	retry    remote.Retry
	logger   zerolog.Logger
}

type openAIPayload struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func newOpenAI(cfg Config, hc *http.Client, logger zerolog.Logger) *openAIClient {
	c := &openAIClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		http:     hc,
		retry:    cfg.Retry,
		logger:   logger,
	}
	if c.model == "" {
		c.model = openAIDefaultModel
	}
	if c.endpoint == "" {
		c.endpoint = openAIURL
	}
	return c
}

func (c *openAIClient) Name() string { return c.model }

func (c *openAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}
	req = truncate(req, c.logger)

	messages := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	payload := openAIPayload{
		Model:       c.model,
		Messages:    messages,
		Temperature: float64(req.Temperature),
		MaxTokens:   max(req.MaxTokens, defaultMaxTokens),
	}
	if req.JSON {
		payload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Int("payload_size", len(body)).
		Msg("OpenAI API request")

	data, err := remote.Do(ctx, c.http, c.retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		return httpReq, nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai: %w", err)
	}

	var or openAIResponse
	if err := json.Unmarshal(data, &or); err != nil {
		return Response{}, fmt.Errorf("openai: parse response: %w", err)
	}
	if len(or.Choices) == 0 {
		return Response{}, errors.New("openai: no choices in response")
	}
	c.logger.Debug().
		Int("prompt_tokens", or.Usage.PromptTokens).
		Int("completion_tokens", or.Usage.CompletionTokens).
		Str("finish_reason", or.Choices[0].FinishReason).
		Msg("OpenAI API success")
	return Response{Text: or.Choices[0].Message.Content}, nil
}
