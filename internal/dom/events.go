package dom

import (
	"context"

	"golang.org/x/net/html"
)

// Event is a synthetic DOM event.
type Event struct {
	Type    string
	Bubbles bool
}

// NewEvent builds an event with the bubbling behaviour browsers use for
// the given type: focus and blur stay on the target, everything else
// bubbles.
func NewEvent(typ string) Event {
	switch typ {
	case "focus", "blur", "load", "scroll":
		return Event{Type: typ}
	default:
		return Event{Type: typ, Bubbles: true}
	}
}

// Listener receives an event and the element it was dispatched on.
type Listener func(ev Event, target *Element)

// DispatchedEvent is one entry of the document's event log.
type DispatchedEvent struct {
	Type   string
	Target *Element
}

// AddEventListener registers fn for events of typ reaching el.
func (d *Document) AddEventListener(el *Element, typ string, fn Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byType, ok := d.listeners[el.node]
	if !ok {
		byType = make(map[string][]Listener)
		d.listeners[el.node] = byType
	}
	byType[typ] = append(byType[typ], fn)
}

// Dispatch fires ev at el, bubbling through ancestors when ev.Bubbles.
// Listeners run on the calling goroutine after the document lock is
// released, so they may read and write the document.
func (d *Document) Dispatch(_ context.Context, el *Element, ev Event) error {
	if el == nil || el.doc != d {
		return ErrDetached
	}
	d.mu.Lock()
	if !d.connected(el.node) {
		d.mu.Unlock()
		return ErrDetached
	}
	if ev.Type == "blur" && d.active == el.node {
		d.active = nil
	}
	d.events = append(d.events, DispatchedEvent{Type: ev.Type, Target: el})
	if len(d.events) > maxEventLog {
		d.events = d.events[len(d.events)-maxEventLog:]
	}
	var calls []Listener
	for n := el.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode || n == d.root {
			calls = append(calls, d.listeners[n][ev.Type]...)
		}
		if !ev.Bubbles {
			break
		}
	}
	d.mu.Unlock()

	for _, fn := range calls {
		fn(ev, el)
	}
	return nil
}

// Events returns the recent event log, oldest first.
func (d *Document) Events() []DispatchedEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DispatchedEvent(nil), d.events...)
}

// EventsFor returns the event types dispatched on el, oldest first.
func (d *Document) EventsFor(el *Element) []string {
	var out []string
	for _, ev := range d.Events() {
		if ev.Target == el {
			out = append(out, ev.Type)
		}
	}
	return out
}
