package dom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// File is an in-memory file assigned to a file input.
type File struct {
	Name         string
	MIMEType     string
	Data         []byte
	LastModified time.Time
}

// nodeState is what a browser keeps as properties rather than attributes.
// A nil pointer means "not dirty, fall back to the markup".
type nodeState struct {
	value    *string
	checked  *bool
	selected *bool
	files    []File
}

// Value returns the current value property of an input, textarea or select.
func (e *Element) Value() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.value(e.node)
}

func (d *Document) value(n *html.Node) string {
	if s, ok := d.props[n]; ok && s.value != nil {
		return *s.value
	}
	switch n.DataAtom {
	case atom.Textarea:
		return textContent(n, nil)
	case atom.Select:
		for _, o := range optionNodes(n) {
			if d.selected(o) {
				return optionValue(o)
			}
		}
		if !hasAttr(n, "multiple") {
			if opts := optionNodes(n); len(opts) > 0 {
				return optionValue(opts[0])
			}
		}
		return ""
	case atom.Input:
		if v := attr(n, "value"); v != "" {
			return v
		}
		switch strings.ToLower(attr(n, "type")) {
		case "checkbox", "radio":
			return "on"
		}
	}
	return ""
}

// Checked returns the checked property of a checkbox or radio.
func (e *Element) Checked() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.checked(e.node)
}

func (d *Document) checked(n *html.Node) bool {
	if s, ok := d.props[n]; ok && s.checked != nil {
		return *s.checked
	}
	return hasAttr(n, "checked")
}

// Selected returns the selected property of an <option>.
func (e *Element) Selected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.selected(e.node)
}

func (d *Document) selected(n *html.Node) bool {
	if s, ok := d.props[n]; ok && s.selected != nil {
		return *s.selected
	}
	return hasAttr(n, "selected")
}

// SelectedIndex returns the index of the first selected option, or -1.
func (e *Element) SelectedIndex() int {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for i, o := range optionNodes(e.node) {
		if e.doc.selected(o) {
			return i
		}
	}
	return -1
}

// Files returns the files assigned to a file input.
func (e *Element) Files() []File {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if s, ok := e.doc.props[e.node]; ok {
		return append([]File(nil), s.files...)
	}
	return nil
}

// Connected reports whether el belongs to d and is attached.
func (d *Document) Connected(_ context.Context, el *Element) bool {
	if el == nil || el.doc != d {
		return false
	}
	return el.Connected()
}

// SetValue assigns the value property of an input or textarea.
func (d *Document) SetValue(_ context.Context, el *Element, v string) error {
	return d.mutateProps(el, func(n *html.Node) error {
		switch n.DataAtom {
		case atom.Input, atom.Textarea:
		default:
			return fmt.Errorf("set value on <%s>", n.Data)
		}
		d.state(n).value = &v
		return nil
	})
}

// SelectIndex makes option idx the only selected option of a <select>.
func (d *Document) SelectIndex(_ context.Context, el *Element, idx int) error {
	return d.mutateProps(el, func(n *html.Node) error {
		opts := optionNodes(n)
		if idx < 0 || idx >= len(opts) {
			return fmt.Errorf("option index %d out of range", idx)
		}
		for i, o := range opts {
			sel := i == idx
			d.state(o).selected = &sel
		}
		d.state(n).value = nil
		return nil
	})
}

// SetSelected toggles a single option of a <select>.
func (d *Document) SetSelected(_ context.Context, el *Element, idx int, selected bool) error {
	return d.mutateProps(el, func(n *html.Node) error {
		opts := optionNodes(n)
		if idx < 0 || idx >= len(opts) {
			return fmt.Errorf("option index %d out of range", idx)
		}
		d.state(opts[idx]).selected = &selected
		d.state(n).value = nil
		return nil
	})
}

// SetChecked assigns the checked property. Checking a radio unchecks the
// other radios of its group.
func (d *Document) SetChecked(_ context.Context, el *Element, checked bool) error {
	return d.mutateProps(el, func(n *html.Node) error {
		if n.DataAtom != atom.Input {
			return fmt.Errorf("set checked on <%s>", n.Data)
		}
		d.state(n).checked = &checked
		if !checked || !strings.EqualFold(attr(n, "type"), "radio") {
			return nil
		}
		name := attr(n, "name")
		if name == "" {
			return nil
		}
		scope := d.root
		for p := n.Parent; p != nil; p = p.Parent {
			if p.DataAtom == atom.Form {
				scope = p
				break
			}
		}
		off := false
		walk(scope, func(o *html.Node) bool {
			if o != n && o.DataAtom == atom.Input && strings.EqualFold(attr(o, "type"), "radio") && attr(o, "name") == name {
				d.state(o).checked = &off
			}
			return true
		})
		return nil
	})
}

// SetFiles replaces the file list of a file input.
func (d *Document) SetFiles(_ context.Context, el *Element, files []File) error {
	return d.mutateProps(el, func(n *html.Node) error {
		if n.DataAtom != atom.Input || !strings.EqualFold(attr(n, "type"), "file") {
			return fmt.Errorf("set files on non-file control")
		}
		d.state(n).files = append([]File(nil), files...)
		return nil
	})
}

// Focus moves focus to el and fires a focus event.
func (d *Document) Focus(ctx context.Context, el *Element) error {
	if err := d.mutateProps(el, func(n *html.Node) error {
		d.active = n
		return nil
	}); err != nil {
		return err
	}
	return d.Dispatch(ctx, el, NewEvent("focus"))
}

func (d *Document) mutateProps(el *Element, fn func(*html.Node) error) error {
	if el == nil || el.doc != d {
		return ErrDetached
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected(el.node) {
		return ErrDetached
	}
	return fn(el.node)
}
