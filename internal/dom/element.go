package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a handle to an element node. Handles are canonical per
// document, so two handles for the same node are the same pointer.
type Element struct {
	doc  *Document
	node *html.Node
}

// Doc returns the owning document.
func (e *Element) Doc() *Document { return e.doc }

// Tag returns the lowercase tag name.
func (e *Element) Tag() string { return strings.ToLower(e.node.Data) }

func (e *Element) Attr(name string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.node, name)
}

func (e *Element) HasAttr(name string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return hasAttr(e.node, name)
}

func (e *Element) ID() string   { return e.Attr("id") }
func (e *Element) Name() string { return e.Attr("name") }

// InputType returns the lowercase type of an <input>, defaulting to "text".
// Other elements return "".
func (e *Element) InputType() string {
	if e.node.DataAtom != atom.Input {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(e.Attr("type")))
	if t == "" {
		return "text"
	}
	return t
}

// IsControl reports whether the element is an input, select or textarea.
func (e *Element) IsControl() bool { return isControl(e.node) }

func isControl(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Input, atom.Select, atom.Textarea:
		return true
	}
	return false
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if p := e.node.Parent; p != nil && p.Type == html.ElementNode {
		return e.doc.elem(p)
	}
	return nil
}

// PrevElementSibling returns the nearest preceding sibling element.
func (e *Element) PrevElementSibling() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for s := e.node.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return e.doc.elem(s)
		}
	}
	return nil
}

// Children returns the child elements.
func (e *Element) Children() []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.elem(c))
		}
	}
	return out
}

// Text returns the whitespace-collapsed text content.
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return CollapseSpace(textContent(e.node, nil))
}

// TextExcluding is Text without the subtrees of the named tags.
func (e *Element) TextExcluding(tags ...string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return CollapseSpace(textContent(e.node, func(n *html.Node) bool {
		for _, t := range tags {
			if strings.EqualFold(n.Data, t) {
				return true
			}
		}
		return false
	}))
}

// DirectText returns the first non-blank text node that is a direct child.
func (e *Element) DirectText() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if t := CollapseSpace(c.Data); t != "" {
			return t
		}
	}
	return ""
}

// Find returns descendants matching the CSS selector in document order.
func (e *Element) Find(selector string) []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.wrap(goquery.NewDocumentFromNode(e.node).Find(selector).Nodes)
}

// Closest returns the element itself or its nearest ancestor matching
// selector.
func (e *Element) Closest(selector string) *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	nodes := goquery.NewDocumentFromNode(e.node).Closest(selector).Nodes
	if len(nodes) == 0 {
		return nil
	}
	return e.doc.elem(nodes[0])
}

// Is reports whether the element matches selector.
func (e *Element) Is(selector string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return goquery.NewDocumentFromNode(e.node).Is(selector)
}

// Contains reports whether other is a descendant of e.
func (e *Element) Contains(other *Element) bool {
	if other == nil || other.doc != e.doc {
		return false
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for p := other.node.Parent; p != nil; p = p.Parent {
		if p == e.node {
			return true
		}
	}
	return false
}

// Connected reports whether the element is still attached to its document.
func (e *Element) Connected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.connected(e.node)
}

// Required reports the required attribute or aria-required="true".
func (e *Element) Required() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return hasAttr(e.node, "required") || strings.EqualFold(attr(e.node, "aria-required"), "true")
}

// Multiple reports the multiple attribute.
func (e *Element) Multiple() bool { return e.HasAttr("multiple") }

// Options returns the <option> elements of a <select> in order.
func (e *Element) Options() []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.wrap(optionNodes(e.node))
}

func optionNodes(sel *html.Node) []*html.Node {
	var out []*html.Node
	walk(sel, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Option {
			out = append(out, n)
		}
		return true
	})
	return out
}

// OptionValue returns an option's value attribute, or its text when absent.
func (e *Element) OptionValue() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return optionValue(e.node)
}

func optionValue(n *html.Node) string {
	if hasAttr(n, "value") {
		return attr(n, "value")
	}
	return CollapseSpace(textContent(n, nil))
}

// XPath returns a locator for the element usable by a real browser.
func (e *Element) XPath() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return generateXPath(e.node)
}

func (e *Element) String() string {
	var b strings.Builder
	b.WriteString("<" + e.Tag())
	if id := e.ID(); id != "" {
		b.WriteString(" id=" + id)
	}
	if name := e.Name(); name != "" {
		b.WriteString(" name=" + name)
	}
	b.WriteString(">")
	return b.String()
}
