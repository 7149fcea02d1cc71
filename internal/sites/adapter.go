// Package sites holds adapters for form systems whose markup the generic
// extractor cannot read, plus the event strategies their widgets expect.
package sites

import (
	"strings"
	"sync"
	"time"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/extract"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// EventStrategy is the named event sequence a host page needs to observe a
// programmatic write.
type EventStrategy struct {
	Name string
	// FocusFirst focuses the control before assigning a value.
	FocusFirst bool
	// TextEvents fire, in order, after a text value is assigned.
	TextEvents []string
	// BlurAfter, when positive, fires blur this long after TextEvents.
	BlurAfter time.Duration
	// FileEvents fire, in order, after files are assigned.
	FileEvents []string
}

var (
	// Standard is what plain HTML forms and most frameworks listen to.
	Standard = EventStrategy{
		Name:       "standard",
		TextEvents: []string{"input", "change"},
		FileEvents: []string{"change"},
	}
	// Reactive drives widget frameworks that track focus and key events
	// before committing a value.
	Reactive = EventStrategy{
		Name:       "reactive",
		FocusFirst: true,
		TextEvents: []string{"input", "change", "keyup"},
		BlurAfter:  100 * time.Millisecond,
		FileEvents: []string{"change", "input", "focus", "blur"},
	}
)

// StrategyByName returns a built-in strategy.
func StrategyByName(name string) (EventStrategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Standard.Name:
		return Standard, true
	case Reactive.Name:
		return Reactive, true
	}
	return EventStrategy{}, false
}

// Adapter recognizes and extracts one non-standard form system.
type Adapter interface {
	Name() string
	Detect(doc *dom.Document) bool
	Extract(doc *dom.Document, ex *extract.Extractor) []model.DetectedForm
	Events() EventStrategy
}

// Registry selects the adapter for a document. Adapters are consulted in
// registration order; the first whose Detect returns true wins.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry builds a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Default returns a registry with the built-in adapters.
func Default() *Registry {
	return NewRegistry(GoogleForms{})
}

// Register appends an adapter. A nil adapter is ignored.
func (r *Registry) Register(a Adapter) {
	if r == nil || a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// Match returns the first adapter recognizing doc.
func (r *Registry) Match(doc *dom.Document) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	adapters := append([]Adapter(nil), r.adapters...)
	r.mu.RUnlock()
	for _, a := range adapters {
		if a.Detect(doc) {
			return a, true
		}
	}
	return nil, false
}

// Lookup finds an adapter by name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Strategy returns the event strategy for forms produced by the named
// adapter, or Standard for generic forms.
func (r *Registry) Strategy(site string) EventStrategy {
	if site == "" {
		return Standard
	}
	if a, ok := r.Lookup(site); ok {
		return a.Events()
	}
	return Standard
}
