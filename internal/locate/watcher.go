package locate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultDebounce     = 250 * time.Millisecond
)

// WatcherConfig tunes the re-detection triggers. A zero PollInterval
// disables polling. MaxWait caps how long a stream of mutation signals can
// postpone a pass; it defaults to four debounce periods.
type WatcherConfig struct {
	PollInterval time.Duration
	Debounce     time.Duration
	MaxWait      time.Duration
}

// DetectFunc runs one detection pass.
type DetectFunc func(ctx context.Context) error

// Watcher funnels the initial load, a poll ticker and mutation signals into
// a single debounced detection trigger. Passes never overlap.
type Watcher struct {
	cfg     WatcherConfig
	detect  DetectFunc
	signals chan struct{}
	logger  zerolog.Logger
}

func NewWatcher(cfg WatcherConfig, detect DetectFunc, logger zerolog.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxWait < cfg.Debounce {
		cfg.MaxWait = 4 * cfg.Debounce
	}
	return &Watcher{
		cfg:     cfg,
		detect:  detect,
		signals: make(chan struct{}, 1),
		logger:  logger,
	}
}

// Notify requests a detection pass. It never blocks; signals arriving
// while one is pending coalesce.
func (w *Watcher) Notify() {
	select {
	case w.signals <- struct{}{}:
	default:
	}
}

// ObserveDocument forwards content-adding mutations of doc to Notify.
// Mutations that only insert agent UI are ignored.
func (w *Watcher) ObserveDocument(doc *dom.Document) (cancel func()) {
	return doc.Observe(func(m dom.Mutation) {
		if m.AddsContent() {
			w.Notify()
		}
	})
}

// Run detects once immediately, then on every poll tick and on debounced
// mutation signals until ctx is done. A poll tick runs its pass at once and
// absorbs any pending signal.
func (w *Watcher) Run(ctx context.Context) error {
	w.pass(ctx)

	var tick <-chan time.Time
	if w.cfg.PollInterval > 0 {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(w.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()
	var (
		fire    <-chan time.Time
		pending time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			debounce.Stop()
			fire = nil
			w.pass(ctx)
		case <-w.signals:
			now := time.Now()
			if fire == nil {
				pending = now
			}
			wait := w.cfg.Debounce
			if left := w.cfg.MaxWait - now.Sub(pending); left < wait {
				wait = max(left, 0)
			}
			debounce.Reset(wait)
			fire = debounce.C
		case <-fire:
			fire = nil
			w.pass(ctx)
		}
	}
}

func (w *Watcher) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.detect(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("detection pass failed")
	}
}
