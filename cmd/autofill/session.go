package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/browser"
	"github.com/polzovatel/form-autofill-agent/internal/config"
	"github.com/polzovatel/form-autofill-agent/internal/control"
	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/files"
	"github.com/polzovatel/form-autofill-agent/internal/llm"
	"github.com/polzovatel/form-autofill-agent/internal/locate"
	"github.com/polzovatel/form-autofill-agent/internal/matcher"
	"github.com/polzovatel/form-autofill-agent/internal/metrics"
	"github.com/polzovatel/form-autofill-agent/internal/profile"
	"github.com/polzovatel/form-autofill-agent/internal/resolve"
	"github.com/polzovatel/form-autofill-agent/internal/sites"
	"github.com/polzovatel/form-autofill-agent/internal/snapshot"
	"github.com/polzovatel/form-autofill-agent/internal/tools"
)

type pageOptions struct {
	url       string
	file      string
	fileURL   string
	profile   string
	storage   string
	saveState string
	install   bool
}

func (o pageOptions) validate() error {
	if (o.url == "") == (o.file == "") {
		return errors.New("exactly one of --url or --file is required")
	}
	return nil
}

// session is one page with a fully wired orchestrator.
type session struct {
	cfg     *config.Config
	logger  zerolog.Logger
	orch    *agent.Orchestrator
	metrics *metrics.Metrics
	latest  *control.Latest

	doc  *dom.Document
	live *snapshot.Page

	closers []func()
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(out)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openSession(ctx context.Context, cfg *config.Config, opts pageOptions, logger zerolog.Logger) (*session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		latest:  &control.Latest{},
	}

	var (
		page       agent.Page
		affordance agent.Affordance
	)
	if opts.file != "" {
		doc, err := loadFile(opts.file, opts.fileURL)
		if err != nil {
			return nil, err
		}
		s.doc = doc
		page = doc
		affordance = agent.NewDOMAffordance(doc, cfg.Fill.IndicatorDuration, logger.With().Str("comp", "ui").Logger())
	} else {
		launcher, err := browser.NewLauncher(ctx, browser.LaunchOptions{Headless: cfg.Headless, Install: opts.install})
		if err != nil {
			return nil, fmt.Errorf("browser init: %w", err)
		}
		s.closers = append(s.closers, func() { _ = launcher.Close() })
		ctrl, err := launcher.NewController(ctx, opts.storage)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("browser controller: %w", err)
		}
		s.closers = append(s.closers, func() { _ = ctrl.Close(context.Background()) })
		s.live = snapshot.New(ctrl, logger)
		if err := s.live.Navigate(ctx, opts.url); err != nil {
			s.Close()
			return nil, fmt.Errorf("open %s: %w", opts.url, err)
		}
		page = s.live
		affordance = snapshot.NewAffordance(ctrl, cfg.Fill.IndicatorDuration, logger.With().Str("comp", "ui").Logger())
		if opts.saveState != "" {
			path := opts.saveState
			// Runs before the controller closes.
			s.closers = append(s.closers, func() {
				if err := ctrl.SaveState(context.Background(), path); err != nil {
					logger.Error().Err(err).Msg("save state")
					return
				}
				logger.Info().Str("path", path).Msg("storage saved")
			})
		}
	}

	agentOpts, err := s.wire(opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	agentOpts = append(agentOpts, agent.WithAffordance(affordance))

	s.orch = agent.NewOrchestrator(agent.Config{
		BlurDelay:   cfg.Fill.BlurDelay,
		FileTimeout: cfg.Fill.FileTimeout,
		Watcher: locate.WatcherConfig{
			PollInterval: cfg.Detect.PollInterval,
			Debounce:     cfg.Detect.Debounce,
		},
	}, page, logger.With().Str("comp", "orch").Logger(), agentOpts...)
	return s, nil
}

// wire builds the resolution, profile and document stack from config.
func (s *session) wire(opts pageOptions) ([]agent.Option, error) {
	cfg, logger := s.cfg, s.logger
	registry := sites.Default()
	out := []agent.Option{
		agent.WithRegistry(registry),
		agent.WithLocator(locate.NewLocator(logger.With().Str("comp", "locate").Logger(),
			locate.WithRegistry(registry),
			locate.WithMaxDepth(cfg.Detect.MaxDepth),
		)),
		agent.WithResolver(resolve.New(
			resolve.WithThreshold(cfg.AI.Threshold),
			resolve.WithAITimeout(cfg.AI.Timeout),
			resolve.WithLogger(logger.With().Str("comp", "resolve").Logger()),
		)),
		agent.WithMetrics(s.metrics),
		agent.WithNotifier(agent.LogNotifier{Logger: logger.With().Str("comp", "detect").Logger()}),
		agent.WithNotifier(s.latest),
	}

	if cfg.AI.Enabled {
		llmCfg, err := cfg.LLM()
		if err != nil {
			return nil, err
		}
		client, err := llm.New(llmCfg, logger.With().Str("comp", "llm").Logger())
		if err != nil {
			return nil, fmt.Errorf("llm init: %w", err)
		}
		out = append(out, agent.WithMatcher(matcher.NewLLM(client, logger.With().Str("comp", "matcher").Logger())))
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	switch {
	case opts.profile != "":
		out = append(out, agent.WithUserData(profile.FileSource{Path: opts.profile}))
	case cfg.RemoteEnabled():
		out = append(out, agent.WithUserData(profile.NewClient(cfg.API.URL, cfg.API.Token,
			profile.WithHTTPClient(httpClient),
			profile.WithLogger(logger.With().Str("comp", "profile").Logger()),
		)))
	}
	if cfg.RemoteEnabled() {
		out = append(out, agent.WithFetcher(files.NewClient(cfg.API.URL, cfg.API.Token,
			files.WithHTTPClient(httpClient),
			files.WithLogger(logger.With().Str("comp", "files").Logger()),
		)))
	}
	return out, nil
}

// navigator returns the live page for navigation commands, or nil offline.
func (s *session) navigator() tools.Navigator {
	if s.live == nil {
		return nil
	}
	return s.live
}

// Close releases the browser, running cleanups in reverse order.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// loadFile parses a saved page. pageURL, when set, stands in for the
// address the page was saved from so site adapters apply.
func loadFile(path, pageURL string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	if pageURL == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}
	doc, err := dom.Parse(f, pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}
