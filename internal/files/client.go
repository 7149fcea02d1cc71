// Package files fetches stored user documents for file-upload fields.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/remote"
)

// ErrNotFound is returned when the documents API has no file for an id.
var ErrNotFound = errors.New("file not found")

// Document is a decoded stored file.
type Document struct {
	Filename string
	MIMEType string
	Data     []byte
}

type documentPayload struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Content  string `json:"content"`
}

// Client talks to GET {base}/api/user/documents/{id}.
type Client struct {
	base   string
	token  string
	http   *http.Client
	retry  remote.Retry
	logger zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRetry(r remote.Retry) Option {
	return func(c *Client) { c.retry = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		http:   &http.Client{Timeout: 30 * time.Second},
		retry:  remote.Retry{MaxElapsed: 10 * time.Second},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and decodes the document with the given id.
func (c *Client) Fetch(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, fmt.Errorf("fetch file: empty id")
	}
	endpoint := c.base + "/api/user/documents/" + url.PathEscape(id)
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
		if remote.Status(err) == http.StatusNotFound {
			return Document{}, fmt.Errorf("fetch file %s: %w", id, ErrNotFound)
		}
		return Document{}, fmt.Errorf("fetch file %s: %w", id, err)
	}

	var p documentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Document{}, fmt.Errorf("parse file %s: %w", id, err)
	}
	data, err := DecodeContent(p.Content)
	if err != nil {
		return Document{}, fmt.Errorf("file %s: %w", id, err)
	}
	if p.MIMEType == "" {
		p.MIMEType = http.DetectContentType(data)
	}
	c.logger.Debug().Str("file_id", id).Str("filename", p.Filename).Int("bytes", len(data)).Msg("file fetched")
	return Document{Filename: p.Filename, MIMEType: p.MIMEType, Data: data}, nil
}
