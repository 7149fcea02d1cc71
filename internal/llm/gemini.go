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

const geminiDefaultModel = "gemini-2.0-flash"

type geminiClient struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
	retry    remote.Retry
	logger   zerolog.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiPayload struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func newGemini(cfg Config, hc *http.Client, logger zerolog.Logger) *geminiClient {
	c := &geminiClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		http:     hc,
		retry:    cfg.Retry,
		logger:   logger,
	}
	if c.model == "" {
		c.model = geminiDefaultModel
	}
	if c.endpoint == "" {
		c.endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", c.model)
	}
	return c
}

func (c *geminiClient) Name() string { return c.model }

func (c *geminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}
	req = truncate(req, c.logger)

	payload := geminiPayload{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     float64(req.Temperature),
			MaxOutputTokens: max(req.MaxTokens, defaultMaxTokens),
		},
	}
	if req.JSON {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		payload.Contents = append(payload.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}

	data, err := remote.Do(ctx, c.http, c.retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		return httpReq, nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("gemini: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return Response{}, fmt.Errorf("gemini: parse response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return Response{}, errors.New("gemini: no candidates in response")
	}
	cand := gr.Candidates[0]
	if len(cand.Content.Parts) == 0 {
		return Response{}, fmt.Errorf("gemini: empty content (reason: %s)", cand.FinishReason)
	}
	return Response{Text: cand.Content.Parts[0].Text}, nil
}
