package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// Notifier receives the result of every detection pass that found forms.
type Notifier interface {
	Publish(ctx context.Context, n model.DetectedFormsNotification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n model.DetectedFormsNotification)

func (f NotifierFunc) Publish(ctx context.Context, n model.DetectedFormsNotification) { f(ctx, n) }

// LogNotifier writes a one-line summary per detected form.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Publish(_ context.Context, n model.DetectedFormsNotification) {
	for _, f := range n.Forms {
		l.Logger.Info().
			Str("domain", n.Domain).
			Str("form", f.ID).
			Str("kind", string(f.Kind)).
			Str("site", f.Site).
			Int("fields", len(f.Fields)).
			Msg("form available")
	}
}
