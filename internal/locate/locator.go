// Package locate finds the logical forms of a document and keeps
// re-detecting them while the document mutates.
package locate

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/extract"
	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/sites"
)

// DefaultMaxDepth bounds how far up the tree a standalone control looks for
// a container holding sibling controls.
const DefaultMaxDepth = 3

// Locator runs one detection pass over a document.
type Locator struct {
	registry  *sites.Registry
	extractor *extract.Extractor
	maxDepth  int
	logger    zerolog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithMaxDepth overrides the implied-form ancestor search depth.
func WithMaxDepth(n int) Option {
	return func(l *Locator) {
		if n > 0 {
			l.maxDepth = n
		}
	}
}

// WithRegistry sets the site adapters consulted before generic detection.
func WithRegistry(r *sites.Registry) Option {
	return func(l *Locator) { l.registry = r }
}

func NewLocator(logger zerolog.Logger, opts ...Option) *Locator {
	l := &Locator{
		registry:  sites.Default(),
		extractor: extract.New(logger),
		maxDepth:  DefaultMaxDepth,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Extractor exposes the extractor used for every container.
func (l *Locator) Extractor() *extract.Extractor { return l.extractor }

// Locate returns the forms of doc that carry at least one field. A site
// adapter that recognizes the document replaces generic detection. A
// failure inside one container drops only that container.
func (l *Locator) Locate(doc *dom.Document) []model.DetectedForm {
	if doc == nil {
		return nil
	}
	if a, ok := l.registry.Match(doc); ok {
		var forms []model.DetectedForm
		if err := guard(func() { forms = a.Extract(doc, l.extractor) }); err != nil {
			l.logger.Warn().Err(err).Str("site", a.Name()).Msg("site extraction failed")
			return nil
		}
		l.logger.Debug().Str("site", a.Name()).Int("forms", len(forms)).Msg("site adapter matched")
		return nonEmpty(forms)
	}

	var forms []model.DetectedForm
	for i, container := range doc.Find("form") {
		var form model.DetectedForm
		if err := guard(func() { form = l.extractor.Extract(container) }); err != nil {
			l.logger.Warn().Err(err).Int("index", i).Msg("form extraction failed")
			continue
		}
		form.Kind = model.KindForm
		if form.ID == "" {
			form.ID = fmt.Sprintf("form-%d", i)
		}
		forms = append(forms, form)
	}
	forms = append(forms, l.implied(doc)...)
	return nonEmpty(forms)
}

// implied clusters controls outside any <form>. Each control joins the
// nearest ancestor, at most maxDepth levels up, that already holds two or
// more input-like descendants. Clusters of a single control are dropped.
func (l *Locator) implied(doc *dom.Document) []model.DetectedForm {
	body := doc.Body()
	if body == nil {
		return nil
	}
	type cluster struct {
		container *dom.Element
		controls  []*dom.Element
	}
	var order []*cluster
	byContainer := make(map[*dom.Element]*cluster)

	for _, el := range extract.Candidates(body) {
		if el.Closest("form") != nil {
			continue
		}
		container := l.clusterRoot(el)
		if container == nil {
			continue
		}
		c, ok := byContainer[container]
		if !ok {
			c = &cluster{container: container}
			byContainer[container] = c
			order = append(order, c)
		}
		c.controls = append(c.controls, el)
	}

	var forms []model.DetectedForm
	for _, c := range order {
		if len(c.controls) < 2 {
			continue
		}
		var fields []model.FieldDescriptor
		if err := guard(func() { fields = l.extractor.Describe(c.controls) }); err != nil {
			l.logger.Warn().Err(err).Str("container", c.container.String()).Msg("implied form extraction failed")
			continue
		}
		forms = append(forms, model.DetectedForm{
			ID:     fmt.Sprintf("implied-form-%d", len(forms)),
			Kind:   model.KindImplied,
			Fields: fields,
		})
	}
	return forms
}

func (l *Locator) clusterRoot(el *dom.Element) *dom.Element {
	p := el.Parent()
	for depth := 0; p != nil && depth < l.maxDepth; depth++ {
		if countInputLike(p) >= 2 {
			return p
		}
		p = p.Parent()
	}
	return nil
}

func countInputLike(container *dom.Element) int {
	n := 0
	for _, el := range container.Find(extract.ControlSelector) {
		if extract.InputLike(el) {
			n++
		}
	}
	return n
}

func nonEmpty(forms []model.DetectedForm) []model.DetectedForm {
	out := forms[:0:0]
	for _, f := range forms {
		if len(f.Fields) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// guard converts a panic raised while walking a malformed subtree into an
// error.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
