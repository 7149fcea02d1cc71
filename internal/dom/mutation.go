package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// UIMarker is set on elements the agent injects itself so the mutation
// watcher can ignore them.
const UIMarker = "data-autofill-ui"

// Mutation describes one structural or attribute change.
type Mutation struct {
	Target    *Element
	Added     []*Element
	Removed   []*Element
	Attribute string
}

// AddsContent reports whether the mutation inserted elements that are not
// agent UI.
func (m Mutation) AddsContent() bool {
	for _, el := range m.Added {
		if !el.HasAttr(UIMarker) {
			return true
		}
	}
	return false
}

// Observe registers fn for every subsequent mutation and returns a function
// that unregisters it.
func (d *Document) Observe(fn func(Mutation)) (cancel func()) {
	d.obsMu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.obsMu.Unlock()
	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

func (d *Document) notify(m Mutation) {
	d.obsMu.Lock()
	fns := make([]func(Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.obsMu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

// AppendHTML parses fragment in the context of parent, appends the result
// and returns the inserted top-level elements.
func (d *Document) AppendHTML(parent *Element, fragment string) ([]*Element, error) {
	if parent == nil || parent.doc != d {
		return nil, ErrDetached
	}
	d.mu.Lock()
	if !d.connected(parent.node) {
		d.mu.Unlock()
		return nil, ErrDetached
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	var added []*Element
	for _, n := range nodes {
		parent.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.elem(n))
		}
	}
	d.mu.Unlock()

	d.notify(Mutation{Target: parent, Added: added})
	return added, nil
}

// Remove detaches el from the tree. Handles to el and its descendants stay
// valid but report Connected() == false.
func (d *Document) Remove(el *Element) error {
	if el == nil || el.doc != d {
		return ErrDetached
	}
	d.mu.Lock()
	if !d.connected(el.node) || el.node.Parent == nil {
		d.mu.Unlock()
		return ErrDetached
	}
	parent := el.node.Parent
	parent.RemoveChild(el.node)
	var target *Element
	if parent.Type == html.ElementNode {
		target = d.elem(parent)
	}
	d.mu.Unlock()

	d.notify(Mutation{Target: target, Removed: []*Element{el}})
	return nil
}

// SetAttribute sets an attribute on el.
func (d *Document) SetAttribute(el *Element, name, value string) error {
	if el == nil || el.doc != d {
		return ErrDetached
	}
	d.mu.Lock()
	setAttr(el.node, name, value)
	d.mu.Unlock()
	d.notify(Mutation{Target: el, Attribute: name})
	return nil
}

// RemoveAttribute deletes an attribute from el.
func (d *Document) RemoveAttribute(el *Element, name string) error {
	if el == nil || el.doc != d {
		return ErrDetached
	}
	d.mu.Lock()
	removeAttr(el.node, name)
	d.mu.Unlock()
	d.notify(Mutation{Target: el, Attribute: name})
	return nil
}
