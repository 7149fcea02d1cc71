// Package remote performs JSON HTTP calls against the backend services the
// agent depends on, retrying transient failures with exponential backoff.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const maxErrorBody = 500

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Status extracts the HTTP status code carried by err, or 0.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Retry tunes the backoff policy. Zero fields take defaults.
type Retry struct {
	MaxElapsed  time.Duration
	MaxInterval time.Duration
	Initial     time.Duration
}

func (r Retry) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	b.MaxInterval = 5 * time.Second
	if r.MaxElapsed > 0 {
		b.MaxElapsedTime = r.MaxElapsed
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	if r.Initial > 0 {
		b.InitialInterval = r.Initial
	}
	b.Reset()
	return b
}

// Do sends the request produced by build until it succeeds, fails
// permanently, or ctx ends. Network errors, 429 and 5xx responses are
// retried; other 4xx responses are returned at once as *StatusError.
func Do(ctx context.Context, hc *http.Client, policy Retry, logger zerolog.Logger, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		start := time.Now()
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Warn().Err(err).Int("attempt", attempt).Str("url", req.URL.Redacted()).Msg("request failed, retrying")
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		logger.Debug().
			Int("status", resp.StatusCode).
			Int("response_size", len(data)).
			Dur("duration", time.Since(start)).
			Str("url", req.URL.Redacted()).
			Msg("response received")

		if resp.StatusCode >= 300 {
			msg := string(data)
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody] + "..."
			}
			se := &StatusError{Code: resp.StatusCode, Body: msg}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return se
			}
			return backoff.Permanent(se)
		}
		body = data
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy.backoff(), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
