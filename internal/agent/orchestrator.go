// Package agent runs the autofill cycle: it keeps the detected forms of a
// page current, resolves values for them and writes those values back.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/fill"
	"github.com/polzovatel/form-autofill-agent/internal/locate"
	"github.com/polzovatel/form-autofill-agent/internal/metrics"
	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/profile"
	"github.com/polzovatel/form-autofill-agent/internal/resolve"
	"github.com/polzovatel/form-autofill-agent/internal/sites"
)

var (
	ErrFillInProgress = errors.New("a fill is already in progress")
	ErrNoForms        = errors.New("no forms detected")
	ErrFormNotFound   = errors.New("form not found")
	ErrNoUserData     = errors.New("no user data available")
)

// State is the orchestrator's position in the detect/fill cycle.
type State int32

const (
	StateIdle State = iota
	StateDetecting
	StateAnalyzed
	StateFilling
)

func (s State) String() string {
	switch s {
	case StateDetecting:
		return "detecting"
	case StateAnalyzed:
		return "analyzed"
	case StateFilling:
		return "filling"
	default:
		return "idle"
	}
}

// Page is a document the orchestrator can capture and write into.
// *dom.Document implements it; snapshot.LivePage mirrors a browser tab.
type Page interface {
	fill.Page
	Snapshot(ctx context.Context) (*dom.Document, error)
}

// MutationSource is implemented by pages that report DOM changes from
// outside the process.
type MutationSource interface {
	OnMutation(ctx context.Context, fn func()) (cancel func(), err error)
}

// Snapshot is the result of one detection pass. It is never modified after
// it is published.
type Snapshot struct {
	Doc        *dom.Document
	Forms      []model.DetectedForm
	URL        string
	Domain     string
	DetectedAt time.Time
}

// Notification converts the snapshot to its published form.
func (s *Snapshot) Notification() model.DetectedFormsNotification {
	return model.DetectedFormsNotification{URL: s.URL, Domain: s.Domain, Forms: s.Forms, DetectedAt: s.DetectedAt}
}

func (s *Snapshot) form(id string) (model.DetectedForm, bool) {
	for _, f := range s.Forms {
		if f.ID == id {
			return f, true
		}
	}
	return model.DetectedForm{}, false
}

type Config struct {
	// BlurDelay overrides the delayed-blur of strategies that use one.
	BlurDelay   time.Duration
	FileTimeout time.Duration
	Watcher     locate.WatcherConfig
}

type Orchestrator struct {
	cfg        Config
	page       Page
	locator    *locate.Locator
	resolver   *resolve.Resolver
	matcher    resolve.Matcher
	source     profile.Source
	fetcher    fill.Fetcher
	registry   *sites.Registry
	affordance Affordance
	notifiers  []Notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	state    atomic.Int32
	snap     atomic.Pointer[Snapshot]
	filling  atomic.Bool
	detectMu sync.Mutex

	baseMu  sync.Mutex
	baseCtx context.Context
}

type Option func(*Orchestrator)

func WithLocator(l *locate.Locator) Option { return func(o *Orchestrator) { o.locator = l } }

func WithResolver(r *resolve.Resolver) Option { return func(o *Orchestrator) { o.resolver = r } }

// WithMatcher enables the AI tier.
func WithMatcher(m resolve.Matcher) Option { return func(o *Orchestrator) { o.matcher = m } }

// WithUserData sets where fills triggered without explicit data load it from.
func WithUserData(s profile.Source) Option { return func(o *Orchestrator) { o.source = s } }

func WithFetcher(f fill.Fetcher) Option { return func(o *Orchestrator) { o.fetcher = f } }

// WithRegistry sets the adapters consulted for event strategies. Pass the
// same registry to the locator.
func WithRegistry(r *sites.Registry) Option { return func(o *Orchestrator) { o.registry = r } }

func WithAffordance(a Affordance) Option { return func(o *Orchestrator) { o.affordance = a } }

// WithNotifier adds a receiver of detection results. It may be given more
// than once.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func NewOrchestrator(cfg Config, page Page, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		page:       page,
		registry:   sites.Default(),
		affordance: noAffordance{},
		logger:     logger,
		baseCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.locator == nil {
		o.locator = locate.NewLocator(logger.With().Str("comp", "locate").Logger(), locate.WithRegistry(o.registry))
	}
	if o.resolver == nil {
		o.resolver = resolve.New(resolve.WithLogger(logger.With().Str("comp", "resolve").Logger()))
	}
	if o.matcher != nil {
		o.matcher = timedMatcher{next: o.matcher, metrics: o.metrics}
	}
	return o
}

// State reports the current cycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Current returns the latest detection result, or nil before the first pass.
func (o *Orchestrator) Current() *Snapshot { return o.snap.Load() }

// transition moves to s unless a fill owns the state.
func (o *Orchestrator) transition(s State) {
	for {
		cur := o.state.Load()
		if State(cur) == StateFilling && s != StateFilling {
			return
		}
		if o.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (o *Orchestrator) settle() {
	if snap := o.snap.Load(); snap != nil && len(snap.Forms) > 0 {
		o.state.Store(int32(StateAnalyzed))
		return
	}
	o.state.Store(int32(StateIdle))
}

// Detect captures the page, replaces the cached snapshot and publishes the
// forms it found.
func (o *Orchestrator) Detect(ctx context.Context) ([]model.DetectedForm, error) {
	o.detectMu.Lock()
	defer o.detectMu.Unlock()

	start := time.Now()
	o.transition(StateDetecting)
	doc, err := o.page.Snapshot(ctx)
	if err != nil {
		o.metrics.RecordDetection("error", 0, 0, time.Since(start))
		if !o.filling.Load() {
			o.settle()
		}
		return nil, fmt.Errorf("snapshot page: %w", err)
	}

	snap := &Snapshot{
		Doc:        doc,
		Forms:      o.locator.Locate(doc),
		URL:        doc.URL(),
		Domain:     doc.Domain(),
		DetectedAt: time.Now(),
	}
	o.snap.Store(snap)
	if !o.filling.Load() {
		o.settle()
	}

	fields := model.CountFields(snap.Forms)
	if len(snap.Forms) == 0 {
		o.metrics.RecordDetection("empty", 0, 0, time.Since(start))
		o.logger.Debug().Str("url", snap.URL).Msg("no forms detected")
		if err := o.affordance.HideTrigger(ctx); err != nil {
			o.logger.Debug().Err(err).Msg("hide trigger")
		}
		return nil, nil
	}
	o.metrics.RecordDetection("found", len(snap.Forms), fields, time.Since(start))
	o.logger.Info().
		Str("url", snap.URL).
		Int("forms", len(snap.Forms)).
		Int("fields", fields).
		Dur("took", time.Since(start)).
		Msg("forms detected")

	n := snap.Notification()
	for _, nt := range o.notifiers {
		nt.Publish(ctx, n)
	}
	if fields > 0 && !o.filling.Load() {
		if err := o.affordance.ShowTrigger(ctx, o.triggerFill); err != nil {
			o.logger.Warn().Err(err).Msg("show trigger")
		}
	}
	return snap.Forms, nil
}

func (o *Orchestrator) ensureSnapshot(ctx context.Context) (*Snapshot, error) {
	if snap := o.snap.Load(); snap != nil && len(snap.Forms) > 0 {
		return snap, nil
	}
	if _, err := o.Detect(ctx); err != nil {
		return nil, err
	}
	snap := o.snap.Load()
	if snap == nil || len(snap.Forms) == 0 {
		return nil, ErrNoForms
	}
	return snap, nil
}

// selectForms returns the form named id, or every form when id is empty.
func selectForms(snap *Snapshot, id string) ([]model.DetectedForm, error) {
	if id == "" {
		return snap.Forms, nil
	}
	f, ok := snap.form(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	return []model.DetectedForm{f}, nil
}

// FillRequest starts a fill cycle. Values, when set, are written as given
// and skip resolution; otherwise UserData (or the configured source) is
// resolved per form. DryRun resolves without writing.
type FillRequest struct {
	FormID   string          `json:"formId,omitempty"`
	Values   model.ValueMap  `json:"values,omitempty"`
	UserData *model.UserData `json:"userData,omitempty"`
	DryRun   bool            `json:"dryRun,omitempty"`
}

// Resolution is one field's resolved value and the tier that produced it.
type Resolution struct {
	Field   string      `json:"field"`
	Value   model.Value `json:"value"`
	Source  string      `json:"source"`
	Concept string      `json:"concept,omitempty"`
}

type FormReport struct {
	FormID      string        `json:"formId"`
	Strategy    string        `json:"strategy"`
	Resolutions []Resolution  `json:"resolutions,omitempty"`
	Results     []fill.Result `json:"results,omitempty"`
}

// FillReport summarizes a fill cycle.
type FillReport struct {
	CycleID string        `json:"cycleId"`
	Outcome string        `json:"outcome"`
	Forms   []FormReport  `json:"forms"`
	Applied int           `json:"applied"`
	Skipped int           `json:"skipped"`
	Took    time.Duration `json:"took"`
}

const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
	OutcomeDryRun  = "dry-run"
)

// Fill resolves and writes values into the detected forms. Only one fill
// runs at a time; a concurrent call returns ErrFillInProgress. The fill
// works on the snapshot current when it starts, even if detection replaces
// it meanwhile.
func (o *Orchestrator) Fill(ctx context.Context, req FillRequest) (FillReport, error) {
	if !o.filling.CompareAndSwap(false, true) {
		o.metrics.RecordFill("rejected", 0)
		return FillReport{}, ErrFillInProgress
	}
	defer func() {
		o.filling.Store(false)
		o.settle()
	}()

	start := time.Now()
	report := FillReport{CycleID: uuid.NewString()}
	logger := o.logger.With().Str("cycle", report.CycleID).Logger()

	snap, err := o.ensureSnapshot(ctx)
	if err != nil {
		o.metrics.RecordFill(OutcomeFailure, time.Since(start))
		return report, err
	}
	o.state.Store(int32(StateFilling))
	forms, err := selectForms(snap, req.FormID)
	if err != nil {
		o.metrics.RecordFill(OutcomeFailure, time.Since(start))
		return report, err
	}

	var data model.UserData
	if req.Values == nil {
		data, err = o.userData(ctx, req)
		if err != nil {
			o.metrics.RecordFill(OutcomeFailure, time.Since(start))
			return report, err
		}
	}
	if !req.DryRun {
		if err := o.affordance.HideTrigger(ctx); err != nil {
			logger.Debug().Err(err).Msg("hide trigger")
		}
	}
	logger.Info().Int("forms", len(forms)).Int("userKeys", data.Len()).Bool("dryRun", req.DryRun).Msg("fill started")

	for _, form := range forms {
		fr := o.fillForm(ctx, logger, form, req, data)
		for _, r := range fr.Results {
			if r.Applied {
				report.Applied++
			} else {
				report.Skipped++
			}
		}
		report.Forms = append(report.Forms, fr)
	}
	report.Took = time.Since(start)

	switch {
	case req.DryRun:
		report.Outcome = OutcomeDryRun
	case report.Applied > 0 && report.Skipped == 0:
		report.Outcome = OutcomeSuccess
	case report.Applied > 0:
		report.Outcome = OutcomePartial
	default:
		report.Outcome = OutcomeFailure
	}
	o.metrics.RecordFill(report.Outcome, report.Took)
	logger.Info().
		Str("outcome", report.Outcome).
		Int("applied", report.Applied).
		Int("skipped", report.Skipped).
		Dur("took", report.Took).
		Msg("fill finished")

	if !req.DryRun {
		msg := fmt.Sprintf("Filled %d fields", report.Applied)
		if report.Applied == 0 {
			msg = "No fields could be filled"
		}
		if err := o.affordance.Indicate(ctx, report.Applied > 0, msg); err != nil {
			logger.Debug().Err(err).Msg("show indicator")
		}
	}
	return report, nil
}

func (o *Orchestrator) userData(ctx context.Context, req FillRequest) (model.UserData, error) {
	if req.UserData != nil {
		return *req.UserData, nil
	}
	if o.source == nil {
		return model.UserData{}, ErrNoUserData
	}
	data, err := o.source.Load(ctx)
	if err != nil {
		return model.UserData{}, fmt.Errorf("load user data: %w", err)
	}
	return data, nil
}

func (o *Orchestrator) fillForm(ctx context.Context, logger zerolog.Logger, form model.DetectedForm, req FillRequest, data model.UserData) FormReport {
	strategy := o.registry.Strategy(form.Site)
	if o.cfg.BlurDelay > 0 && strategy.BlurAfter > 0 {
		strategy.BlurAfter = o.cfg.BlurDelay
	}
	fr := FormReport{FormID: form.ID, Strategy: strategy.Name}

	values := req.Values
	if values == nil {
		suggestions, err := o.resolver.Suggest(ctx, form.Fields, data, o.matcher)
		if err != nil {
			logger.Warn().Err(err).Str("form", form.ID).Msg("ai suggestions unavailable, using local tiers")
		}
		values = make(model.ValueMap)
		for _, res := range o.resolver.Explain(form.Fields, data, suggestions) {
			o.metrics.RecordResolution(res.Source.String())
			if !res.Resolved() {
				continue
			}
			values[res.Key] = res.Value
			fr.Resolutions = append(fr.Resolutions, Resolution{
				Field:   res.Key,
				Value:   res.Value,
				Source:  res.Source.String(),
				Concept: res.Concept,
			})
		}
	}
	if req.DryRun {
		return fr
	}

	w := fill.NewWriter(o.page,
		fill.WithFetcher(o.fetcher),
		fill.WithStrategy(strategy),
		fill.WithFileTimeout(o.cfg.FileTimeout),
		fill.WithLogger(logger.With().Str("form", form.ID).Logger()),
	)
	fr.Results = w.WriteAll(ctx, form.Fields, values)

	types := make(map[string]model.ControlType, len(form.Fields))
	for _, f := range form.Fields {
		types[f.Key()] = f.Type
	}
	for _, r := range fr.Results {
		o.metrics.RecordWrite(string(types[r.Field]), r.Applied, r.Reason)
	}
	return fr
}

// Run keeps detection current until ctx is done: once at start, on every
// poll tick and after content-adding mutations.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.baseMu.Lock()
	o.baseCtx = ctx
	o.baseMu.Unlock()

	w := locate.NewWatcher(o.cfg.Watcher, func(ctx context.Context) error {
		_, err := o.Detect(ctx)
		return err
	}, o.logger.With().Str("comp", "watcher").Logger())

	switch src := o.page.(type) {
	case *dom.Document:
		cancel := w.ObserveDocument(src)
		defer cancel()
	case MutationSource:
		cancel, err := src.OnMutation(ctx, w.Notify)
		if err != nil {
			o.logger.Warn().Err(err).Msg("mutation observer unavailable, relying on polling")
		} else {
			defer cancel()
		}
	}
	return w.Run(ctx)
}

// triggerFill is the trigger affordance's click handler.
func (o *Orchestrator) triggerFill() {
	o.baseMu.Lock()
	ctx := o.baseCtx
	o.baseMu.Unlock()
	go func() {
		if _, err := o.Fill(ctx, FillRequest{}); err != nil {
			o.logger.Warn().Err(err).Msg("triggered fill failed")
		}
	}()
}

// CurrentValues re-detects and reads the values currently held by the
// controls of the form named formID, or of every form when it is empty.
func (o *Orchestrator) CurrentValues(ctx context.Context, formID string) (map[string]model.ValueMap, error) {
	if _, err := o.Detect(ctx); err != nil {
		return nil, err
	}
	snap := o.snap.Load()
	if snap == nil || len(snap.Forms) == 0 {
		return nil, ErrNoForms
	}
	forms, err := selectForms(snap, formID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.ValueMap, len(forms))
	for _, f := range forms {
		out[f.ID] = ReadValues(f.Fields)
	}
	return out, nil
}

// ReadValues reports the value each field currently holds. Empty fields
// are omitted.
func ReadValues(fields []model.FieldDescriptor) model.ValueMap {
	out := make(model.ValueMap)
	for _, f := range fields {
		key := f.Key()
		if key == "" || f.Control == nil {
			continue
		}
		switch {
		case f.Type.IsTextLike(), f.Type == model.TypeSelectSingle:
			if v := f.Control.Value(); v != "" {
				out[key] = model.String(v)
			}
		case f.Type == model.TypeSelectMultiple:
			var sel []string
			for _, opt := range f.Control.Options() {
				if opt.Selected() {
					sel = append(sel, opt.OptionValue())
				}
			}
			if len(sel) > 0 {
				out[key] = model.List(sel...)
			}
		case f.Type == model.TypeRadioGroup:
			for _, opt := range f.Options {
				if opt.Control != nil && opt.Control.Checked() {
					out[key] = model.String(opt.Value)
					break
				}
			}
		case f.Type == model.TypeCheckboxGroup:
			if len(f.Options) == 1 {
				if c := f.Options[0].Control; c != nil {
					out[key] = model.Bool(c.Checked())
				}
				continue
			}
			var checked []string
			for _, opt := range f.Options {
				if opt.Control != nil && opt.Control.Checked() {
					checked = append(checked, opt.Value)
				}
			}
			if len(checked) > 0 {
				out[key] = model.List(checked...)
			}
		case f.Type == model.TypeFile:
			var names []string
			for _, file := range f.Control.Files() {
				names = append(names, file.Name)
			}
			if len(names) > 0 {
				out[key] = model.List(names...)
			}
		}
	}
	return out
}

// timedMatcher records latency and failures of the wrapped matcher.
type timedMatcher struct {
	next    resolve.Matcher
	metrics *metrics.Metrics
}

func (t timedMatcher) Match(ctx context.Context, fields []model.FieldDescriptor, data model.UserData) (model.Suggestions, error) {
	start := time.Now()
	s, err := t.next.Match(ctx, fields, data)
	t.metrics.RecordMatcher(err, time.Since(start))
	return s, err
}
