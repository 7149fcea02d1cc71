// Package resolve turns detected fields and a user-data dictionary into the
// values to write, consulting AI suggestions, direct lookups and caption
// heuristics in that order.
package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/model"
)

const (
	DefaultThreshold = 0.7
	DefaultAITimeout = 5 * time.Second
)

// Matcher asks an external service to pair fields with user data.
type Matcher interface {
	Match(ctx context.Context, fields []model.FieldDescriptor, data model.UserData) (model.Suggestions, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, fields []model.FieldDescriptor, data model.UserData) (model.Suggestions, error)

func (f MatcherFunc) Match(ctx context.Context, fields []model.FieldDescriptor, data model.UserData) (model.Suggestions, error) {
	return f(ctx, fields, data)
}

// Source names the tier that produced a value.
type Source int

const (
	SourceNone Source = iota
	SourceAI
	SourceDictionary
	SourceHeuristic
	SourceUpload
)

func (s Source) String() string {
	switch s {
	case SourceAI:
		return "ai"
	case SourceDictionary:
		return "dictionary"
	case SourceHeuristic:
		return "heuristic"
	case SourceUpload:
		return "upload"
	default:
		return "none"
	}
}

// Resolution is the outcome for one field. Source is SourceNone when no
// tier produced a usable value.
type Resolution struct {
	Key     string
	Value   model.Value
	Source  Source
	Concept string
}

func (r Resolution) Resolved() bool { return r.Source != SourceNone }

type Resolver struct {
	threshold float64
	aiTimeout time.Duration
	logger    zerolog.Logger
}

type Option func(*Resolver)

// WithThreshold sets the minimum confidence for accepting an AI suggestion.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithAITimeout bounds the matcher call made by Suggest.
func WithAITimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.aiTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		threshold: DefaultThreshold,
		aiTimeout: DefaultAITimeout,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold reports the configured AI confidence threshold.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Suggest calls m within the AI timeout. A nil matcher yields no
// suggestions and no error.
func (r *Resolver) Suggest(ctx context.Context, fields []model.FieldDescriptor, data model.UserData, m Matcher) (model.Suggestions, error) {
	if m == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.aiTimeout)
	defer cancel()

	type result struct {
		s   model.Suggestions
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := m.Match(ctx, fields, data)
		ch <- result{s, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("ai matcher: %w", res.err)
		}
		return res.s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("ai matcher: %w", ctx.Err())
	}
}

// ResolveWithMatcher asks m for suggestions and resolves fields. A failing
// or slow matcher is logged and the cycle falls back to the local tiers.
func (r *Resolver) ResolveWithMatcher(ctx context.Context, fields []model.FieldDescriptor, data model.UserData, m Matcher) model.ValueMap {
	suggestions, err := r.Suggest(ctx, fields, data, m)
	if err != nil {
		r.logger.Warn().Err(err).Msg("ai suggestions unavailable, using local tiers")
	}
	return r.Resolve(fields, data, suggestions)
}

// Resolve maps every resolvable field to its value. Unresolved fields are
// absent from the map.
func (r *Resolver) Resolve(fields []model.FieldDescriptor, data model.UserData, suggestions model.Suggestions) model.ValueMap {
	out := make(model.ValueMap)
	for _, res := range r.Explain(fields, data, suggestions) {
		if res.Resolved() {
			out[res.Key] = res.Value
		}
	}
	return out
}

// Explain returns one Resolution per addressable field, in field order.
func (r *Resolver) Explain(fields []model.FieldDescriptor, data model.UserData, suggestions model.Suggestions) []Resolution {
	out := make([]Resolution, 0, len(fields))
	for _, f := range fields {
		key := f.Key()
		if key == "" || f.Type == model.TypeUnsupported {
			continue
		}
		res := r.field(f, data, suggestions)
		res.Key = key
		r.logger.Debug().
			Str("field", key).
			Str("source", res.Source.String()).
			Str("concept", res.Concept).
			Msg("field resolved")
		out = append(out, res)
	}
	return out
}

func (r *Resolver) field(f model.FieldDescriptor, data model.UserData, suggestions model.Suggestions) Resolution {
	if f.Type == model.TypeFile {
		if up, ok := data.Upload(f.Name, f.DomID, f.Key()); ok {
			return Resolution{Value: model.File(model.FileRef{FileID: up.FileID, Reason: up.Reason}), Source: SourceUpload}
		}
		return Resolution{}
	}

	if m, ok := suggestions.For(f.Name, f.DomID, f.Key()); ok && m.Confidence >= r.threshold {
		if raw, ok := model.ValueFromAny(m.Value); ok {
			if v, ok := fit(f, raw); ok {
				return Resolution{Value: v, Source: SourceAI}
			}
		}
	}

	for _, k := range []string{f.Name, f.DomID, model.NormalizeKey(f.Label)} {
		if raw, ok := data.Lookup(k); ok {
			if v, ok := fit(f, raw); ok {
				return Resolution{Value: v, Source: SourceDictionary}
			}
		}
	}

	raw, concept, ok := guess([]string{f.Label, humanize(f.Name), humanize(f.DomID)}, data)
	if ok {
		if v, ok := fit(f, raw); ok {
			return Resolution{Value: v, Source: SourceHeuristic, Concept: concept}
		}
	}
	return Resolution{Concept: concept}
}

// fit shapes a candidate for the field's control type. Choice fields are
// canonicalized to option values; a candidate matching no option is
// rejected so the next tier can try.
func fit(f model.FieldDescriptor, v model.Value) (model.Value, bool) {
	if v.IsFile() {
		return model.Value{}, false
	}
	switch f.Type {
	case model.TypeSelectSingle, model.TypeRadioGroup:
		for _, item := range v.Items() {
			if i, ok := model.MatchOption(f.Options, item); ok {
				return model.String(f.Options[i].Value), true
			}
		}
		return model.Value{}, false

	case model.TypeSelectMultiple:
		idx := model.MatchOptions(f.Options, v.Items())
		if len(idx) == 0 {
			return model.Value{}, false
		}
		return model.List(optionValues(f.Options, idx)...), true

	case model.TypeCheckboxGroup:
		if len(f.Options) == 1 && v.Kind != model.KindList {
			if checked, ok := v.Checked(); ok {
				return model.Bool(checked), true
			}
			if _, ok := model.MatchOption(f.Options, v.Text()); ok {
				return model.Bool(true), true
			}
			return model.Value{}, false
		}
		if v.Kind == model.KindList {
			idx := model.MatchOptions(f.Options, v.List)
			if len(idx) == 0 {
				return model.Value{}, false
			}
			return model.List(optionValues(f.Options, idx)...), true
		}
		if i, ok := model.MatchOption(f.Options, v.Text()); ok {
			return model.String(f.Options[i].Value), true
		}
		return model.Value{}, false
	}

	if v.IsEmpty() {
		return model.Value{}, false
	}
	if v.Kind == model.KindString {
		return v, true
	}
	return model.String(v.Text()), true
}

func optionValues(opts []model.Option, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, opts[i].Value)
	}
	return out
}
