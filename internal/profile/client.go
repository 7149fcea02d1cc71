package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/remote"
)

// ErrUnauthorized is returned when the backend rejects the session token.
var ErrUnauthorized = errors.New("profile: unauthorized")

// Client loads the profile from GET {base}/api/extension/profile.
type Client struct {
	base   string
	token  string
	http   *http.Client
	retry  remote.Retry
	logger zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithRetry(r remote.Retry) Option       { return func(c *Client) { c.retry = r } }
func WithLogger(l zerolog.Logger) Option    { return func(c *Client) { c.logger = l } }

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		http:   &http.Client{Timeout: 15 * time.Second},
		retry:  remote.Retry{MaxElapsed: 10 * time.Second},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches and flattens the profile.
func (c *Client) Load(ctx context.Context) (model.UserData, error) {
	endpoint := c.base + "/api/extension/profile"
	body, err := remote.Do(ctx, c.http, c.retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		if remote.Status(err) == http.StatusUnauthorized {
			return model.UserData{}, ErrUnauthorized
		}
		return model.UserData{}, fmt.Errorf("fetch profile: %w", err)
	}
	data, err := Decode(body)
	if err != nil {
		return model.UserData{}, err
	}
	c.logger.Debug().Int("keys", data.Len()).Msg("profile loaded")
	return data, nil
}
