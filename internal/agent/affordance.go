package agent

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

// DefaultIndicatorDuration is how long the fill indicator stays visible.
const DefaultIndicatorDuration = 3 * time.Second

// Affordance is the in-page UI of the agent: a trigger that starts a fill
// and a transient indicator reporting its outcome.
type Affordance interface {
	// ShowTrigger displays the trigger if it is not already visible. The
	// trigger removes itself and calls onClick when activated.
	ShowTrigger(ctx context.Context, onClick func()) error
	HideTrigger(ctx context.Context) error
	Indicate(ctx context.Context, ok bool, message string) error
}

type noAffordance struct{}

func (noAffordance) ShowTrigger(context.Context, func()) error   { return nil }
func (noAffordance) HideTrigger(context.Context) error           { return nil }
func (noAffordance) Indicate(context.Context, bool, string) error { return nil }

const (
	triggerHTML   = `<button type="button" ` + dom.UIMarker + `="trigger">Fill Form</button>`
	indicatorHTML = `<div role="status" ` + dom.UIMarker + `="indicator" data-state="%s">%s</div>`
)

// DOMAffordance injects the trigger and indicator into a dom.Document.
type DOMAffordance struct {
	doc    *dom.Document
	ttl    time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	trigger *dom.Element
}

func NewDOMAffordance(doc *dom.Document, ttl time.Duration, logger zerolog.Logger) *DOMAffordance {
	if ttl <= 0 {
		ttl = DefaultIndicatorDuration
	}
	return &DOMAffordance{doc: doc, ttl: ttl, logger: logger}
}

// Trigger returns the visible trigger element.
func (a *DOMAffordance) Trigger() (*dom.Element, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.trigger == nil || !a.trigger.Connected() {
		return nil, false
	}
	return a.trigger, true
}

func (a *DOMAffordance) ShowTrigger(_ context.Context, onClick func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.trigger != nil && a.trigger.Connected() {
		return nil
	}
	body := a.doc.Body()
	if body == nil {
		return dom.ErrDetached
	}
	added, err := a.doc.AppendHTML(body, triggerHTML)
	if err != nil {
		return fmt.Errorf("inject trigger: %w", err)
	}
	if len(added) == 0 {
		return fmt.Errorf("inject trigger: nothing inserted")
	}
	btn := added[0]
	a.doc.AddEventListener(btn, "click", func(dom.Event, *dom.Element) {
		if err := a.HideTrigger(context.Background()); err != nil {
			a.logger.Debug().Err(err).Msg("remove trigger")
		}
		onClick()
	})
	a.trigger = btn
	return nil
}

func (a *DOMAffordance) HideTrigger(context.Context) error {
	a.mu.Lock()
	btn := a.trigger
	a.trigger = nil
	a.mu.Unlock()
	if btn == nil || !btn.Connected() {
		return nil
	}
	return a.doc.Remove(btn)
}

// Indicate shows message and removes it after the configured duration.
func (a *DOMAffordance) Indicate(_ context.Context, ok bool, message string) error {
	body := a.doc.Body()
	if body == nil {
		return dom.ErrDetached
	}
	state := "success"
	if !ok {
		state = "failure"
	}
	added, err := a.doc.AppendHTML(body, fmt.Sprintf(indicatorHTML, state, html.EscapeString(message)))
	if err != nil {
		return fmt.Errorf("inject indicator: %w", err)
	}
	time.AfterFunc(a.ttl, func() {
		for _, el := range added {
			if el.Connected() {
				_ = a.doc.Remove(el)
			}
		}
	})
	return nil
}
