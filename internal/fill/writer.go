// Package fill writes resolved values into live controls and fires the
// events host pages need to notice the change.
package fill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/files"
	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/sites"
)

const DefaultFileTimeout = 15 * time.Second

// Page is the writable surface of a document. *dom.Document implements it
// for offline documents; the snapshot package mirrors it into a browser.
type Page interface {
	Connected(ctx context.Context, el *dom.Element) bool
	SetValue(ctx context.Context, el *dom.Element, v string) error
	SelectIndex(ctx context.Context, el *dom.Element, idx int) error
	SetSelected(ctx context.Context, el *dom.Element, idx int, selected bool) error
	SetChecked(ctx context.Context, el *dom.Element, checked bool) error
	SetFiles(ctx context.Context, el *dom.Element, files []dom.File) error
	Focus(ctx context.Context, el *dom.Element) error
	Dispatch(ctx context.Context, el *dom.Element, ev dom.Event) error
}

// Fetcher downloads stored documents for file fields.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (files.Document, error)
}

// Reasons reported for writes that were not applied.
const (
	ReasonDetached    = "detached"
	ReasonNoMatch     = "no-matching-option"
	ReasonUnsupported = "unsupported"
	ReasonValueType   = "value-type"
	ReasonNoFetcher   = "no-file-fetcher"
	ReasonFetchFailed = "file-fetch-failed"
	ReasonWriteFailed = "write-failed"
)

// Result reports the outcome of one field write.
type Result struct {
	Field   string `json:"field"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

type Writer struct {
	page        Page
	fetcher     Fetcher
	strategy    sites.EventStrategy
	fileTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

type Option func(*Writer)

func WithFetcher(f Fetcher) Option {
	return func(w *Writer) { w.fetcher = f }
}

// WithStrategy selects the event sequence fired after each write.
func WithStrategy(s sites.EventStrategy) Option {
	return func(w *Writer) { w.strategy = s }
}

func WithFileTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.fileTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

func NewWriter(page Page, opts ...Option) *Writer {
	w := &Writer{
		page:        page,
		strategy:    sites.Standard,
		fileTimeout: DefaultFileTimeout,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteAll writes values into fields in field order. Fields without a value
// are skipped; a failed field never stops the others.
func (w *Writer) WriteAll(ctx context.Context, fields []model.FieldDescriptor, values model.ValueMap) []Result {
	var out []Result
	for _, f := range fields {
		v, ok := values[f.Key()]
		if !ok || f.Key() == "" {
			continue
		}
		if ctx.Err() != nil {
			out = append(out, Result{Field: f.Key(), Reason: ReasonWriteFailed, Err: ctx.Err()})
			continue
		}
		res := w.Write(ctx, f, v)
		if res.Applied {
			w.logger.Debug().Str("field", res.Field).Str("type", string(f.Type)).Msg("field written")
		} else {
			w.logger.Warn().Err(res.Err).Str("field", res.Field).Str("reason", res.Reason).Msg("field skipped")
		}
		out = append(out, res)
	}
	return out
}

// Write applies v to the control behind f.
func (w *Writer) Write(ctx context.Context, f model.FieldDescriptor, v model.Value) Result {
	res := Result{Field: f.Key()}
	if !w.page.Connected(ctx, f.Control) {
		res.Reason = ReasonDetached
		return res
	}

	var err error
	switch {
	case f.Type.IsTextLike():
		err = w.text(ctx, f.Control, v)
	case f.Type == model.TypeSelectSingle:
		err = w.selectOne(ctx, f, v)
	case f.Type == model.TypeSelectMultiple:
		err = w.selectMany(ctx, f, v)
	case f.Type == model.TypeRadioGroup:
		err = w.radio(ctx, f, v)
	case f.Type == model.TypeCheckboxGroup:
		err = w.checkbox(ctx, f, v)
	case f.Type == model.TypeFile:
		err = w.file(ctx, f.Control, v)
	default:
		err = errUnsupported
	}
	if err != nil {
		res.Err = err
		res.Reason = reason(err)
		return res
	}
	res.Applied = true
	return res
}

var (
	errUnsupported = errors.New("unsupported control type")
	errNoMatch     = errors.New("no option matches value")
	errValueType   = errors.New("value does not fit control")
	errNoFetcher   = errors.New("no file fetcher configured")
)

type fetchError struct{ err error }

func (e fetchError) Error() string { return "fetch file: " + e.err.Error() }
func (e fetchError) Unwrap() error { return e.err }

func reason(err error) string {
	var fe fetchError
	switch {
	case errors.Is(err, dom.ErrDetached):
		return ReasonDetached
	case errors.Is(err, errNoMatch):
		return ReasonNoMatch
	case errors.Is(err, errUnsupported):
		return ReasonUnsupported
	case errors.Is(err, errValueType):
		return ReasonValueType
	case errors.Is(err, errNoFetcher):
		return ReasonNoFetcher
	case errors.As(err, &fe):
		return ReasonFetchFailed
	default:
		return ReasonWriteFailed
	}
}

func (w *Writer) fire(ctx context.Context, el *dom.Element, types ...string) error {
	for _, t := range types {
		if err := w.page.Dispatch(ctx, el, dom.NewEvent(t)); err != nil {
			return fmt.Errorf("dispatch %s: %w", t, err)
		}
	}
	return nil
}

func (w *Writer) text(ctx context.Context, el *dom.Element, v model.Value) error {
	if v.IsFile() {
		return errValueType
	}
	if w.strategy.FocusFirst {
		if err := w.page.Focus(ctx, el); err != nil {
			return err
		}
	}
	if err := w.page.SetValue(ctx, el, v.Text()); err != nil {
		return err
	}
	if err := w.fire(ctx, el, w.strategy.TextEvents...); err != nil {
		return err
	}
	if w.strategy.BlurAfter <= 0 {
		return nil
	}
	t := time.NewTimer(w.strategy.BlurAfter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if !w.page.Connected(ctx, el) {
		return nil
	}
	return w.fire(ctx, el, "blur")
}

func (w *Writer) selectOne(ctx context.Context, f model.FieldDescriptor, v model.Value) error {
	idx, ok := firstMatch(f.Options, v)
	if !ok {
		return errNoMatch
	}
	if err := w.page.SelectIndex(ctx, f.Control, idx); err != nil {
		return err
	}
	return w.fire(ctx, f.Control, "change")
}

// selectMany makes the matched options the exact selection. Matching runs
// before any option is touched so a value that matches nothing leaves the
// control alone.
func (w *Writer) selectMany(ctx context.Context, f model.FieldDescriptor, v model.Value) error {
	if v.IsFile() {
		return errValueType
	}
	hits := model.MatchOptions(f.Options, v.Items())
	if len(hits) == 0 {
		return errNoMatch
	}
	want := make(map[int]bool, len(hits))
	for _, i := range hits {
		want[i] = true
	}
	for i := range f.Options {
		if !want[i] {
			if err := w.page.SetSelected(ctx, f.Control, i, false); err != nil {
				return err
			}
		}
	}
	for _, i := range hits {
		if err := w.page.SetSelected(ctx, f.Control, i, true); err != nil {
			return err
		}
	}
	return w.fire(ctx, f.Control, "change")
}

func (w *Writer) radio(ctx context.Context, f model.FieldDescriptor, v model.Value) error {
	idx, ok := firstMatch(f.Options, v)
	if !ok {
		if len(f.Options) == 1 && v.Kind == model.KindBool && v.Bool {
			idx, ok = 0, true
		}
	}
	if !ok {
		return errNoMatch
	}
	return w.check(ctx, f.Options[idx].Control, true)
}

func (w *Writer) checkbox(ctx context.Context, f model.FieldDescriptor, v model.Value) error {
	if v.IsFile() {
		return errValueType
	}
	if len(f.Options) == 1 && v.Kind != model.KindList {
		want, ok := v.Checked()
		if !ok {
			if _, hit := model.MatchOption(f.Options, v.Text()); !hit {
				return errNoMatch
			}
			want = true
		}
		return w.check(ctx, f.Options[0].Control, want)
	}

	var hits []int
	if v.Kind == model.KindList {
		hits = model.MatchOptions(f.Options, v.List)
	} else if i, ok := model.MatchOption(f.Options, v.Text()); ok {
		hits = []int{i}
	}
	if len(hits) == 0 {
		return errNoMatch
	}
	for _, i := range hits {
		if err := w.check(ctx, f.Options[i].Control, true); err != nil {
			return err
		}
	}
	return nil
}

// check sets the checked state and fires change when it toggled.
func (w *Writer) check(ctx context.Context, el *dom.Element, checked bool) error {
	if el == nil {
		return dom.ErrDetached
	}
	if el.Checked() == checked {
		return nil
	}
	if err := w.page.SetChecked(ctx, el, checked); err != nil {
		return err
	}
	return w.fire(ctx, el, "change")
}

func (w *Writer) file(ctx context.Context, el *dom.Element, v model.Value) error {
	if !v.IsFile() || v.File.FileID == "" {
		return errValueType
	}
	if w.fetcher == nil {
		return errNoFetcher
	}
	fctx, cancel := context.WithTimeout(ctx, w.fileTimeout)
	defer cancel()
	doc, err := w.fetcher.Fetch(fctx, v.File.FileID)
	if err != nil {
		return fetchError{err}
	}
	name := doc.Filename
	if name == "" {
		name = v.File.FileID
	}
	f := dom.File{Name: name, MIMEType: doc.MIMEType, Data: doc.Data, LastModified: w.now()}
	if err := w.page.SetFiles(ctx, el, []dom.File{f}); err != nil {
		return err
	}
	return w.fire(ctx, el, w.strategy.FileEvents...)
}

func firstMatch(opts []model.Option, v model.Value) (int, bool) {
	if v.IsFile() {
		return -1, false
	}
	for _, item := range v.Items() {
		if i, ok := model.MatchOption(opts, item); ok {
			return i, true
		}
	}
	return -1, false
}
