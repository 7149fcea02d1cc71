package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// HiddenMarker is stamped on elements whose computed style is hidden when a
// page is captured from a real browser, where stylesheets are applied.
const HiddenMarker = "data-autofill-hidden"

// Hidden reports whether the element or one of its ancestors is not
// rendered: display:none or visibility:hidden inline styles, the hidden
// attribute, or the capture-time HiddenMarker.
func (e *Element) Hidden() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hasAttr(n, "hidden") || hasAttr(n, HiddenMarker) {
			return true
		}
		decl := inlineStyle(attr(n, "style"))
		if decl["display"] == "none" {
			return true
		}
		if v := decl["visibility"]; v == "hidden" || v == "collapse" {
			return true
		}
	}
	return false
}

// AriaHidden reports aria-hidden="true" on the element itself.
func (e *Element) AriaHidden() bool {
	return strings.EqualFold(strings.TrimSpace(e.Attr("aria-hidden")), "true")
}

// inlineStyle parses a style attribute into lowercase property/value pairs.
func inlineStyle(style string) map[string]string {
	if style == "" {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		out[strings.ToLower(strings.TrimSpace(prop))] = strings.ToLower(val)
	}
	return out
}
