// Package dom is an in-process live document: an HTML tree with the property
// state, focus, events and mutation notifications the autofill engine reads
// and writes. A Document is safe for concurrent use.
package dom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrDetached is returned by write operations on an element that is no
// longer part of its document.
var ErrDetached = errors.New("element detached from document")

const maxEventLog = 1024

// Document owns an HTML tree plus the state a browser keeps outside of
// attributes.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
	url  string

	props     map[*html.Node]*nodeState
	listeners map[*html.Node]map[string][]Listener
	active    *html.Node
	events    []DispatchedEvent

	obsMu     sync.Mutex
	observers map[int]func(Mutation)
	nextObs   int

	elemMu sync.Mutex
	elems  map[*html.Node]*Element
}

// Parse reads an HTML document. pageURL is informational and is reported by
// URL and Domain.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return newDocument(root, pageURL), nil
}

// ParseString is Parse over an in-memory string.
func ParseString(src, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(src), pageURL)
}

func newDocument(root *html.Node, pageURL string) *Document {
	return &Document{
		root:      root,
		url:       pageURL,
		props:     make(map[*html.Node]*nodeState),
		listeners: make(map[*html.Node]map[string][]Listener),
		observers: make(map[int]func(Mutation)),
		elems:     make(map[*html.Node]*Element),
	}
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string { return d.url }

// Domain returns the host part of URL, or "" when it cannot be parsed.
func (d *Document) Domain() string {
	u, err := url.Parse(d.url)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Snapshot returns the document itself; a live browser page returns a fresh
// capture instead.
func (d *Document) Snapshot(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// Body returns the <body> element, or the root element when the tree has no
// body.
func (d *Document) Body() *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n := findAtom(d.root, atom.Body); n != nil {
		return d.elem(n)
	}
	if n := findFirstElement(d.root); n != nil {
		return d.elem(n)
	}
	return nil
}

// Find returns every element matching the CSS selector in document order.
func (d *Document) Find(selector string) []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap(goquery.NewDocumentFromNode(d.root).Find(selector).Nodes)
}

// First returns the first element matching selector.
func (d *Document) First(selector string) (*Element, bool) {
	found := d.Find(selector)
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}

// ByID returns the first element whose id attribute equals id.
func (d *Document) ByID(id string) (*Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var hit *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			hit = n
			return false
		}
		return true
	})
	if hit == nil {
		return nil, false
	}
	return d.elem(hit), true
}

// Active returns the focused element, if any.
func (d *Document) Active() *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.active == nil || !d.connected(d.active) {
		return nil
	}
	return d.elem(d.active)
}

// elem returns the canonical wrapper for n so wrappers compare by pointer.
func (d *Document) elem(n *html.Node) *Element {
	d.elemMu.Lock()
	defer d.elemMu.Unlock()
	if e, ok := d.elems[n]; ok {
		return e
	}
	e := &Element{doc: d, node: n}
	d.elems[n] = e
	return e
}

func (d *Document) wrap(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, d.elem(n))
		}
	}
	return out
}

func (d *Document) connected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func (d *Document) state(n *html.Node) *nodeState {
	s, ok := d.props[n]
	if !ok {
		s = &nodeState{}
		d.props[n] = s
	}
	return s
}

// walk visits n and its descendants in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	var hit *html.Node
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.DataAtom == a {
			hit = c
			return false
		}
		return true
	})
	return hit
}

func findFirstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// textContent concatenates descendant text, skipping subtrees for which skip
// returns true.
func textContent(n *html.Node, skip func(*html.Node) bool) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if skip != nil && skip(c) {
				return
			}
			if c.DataAtom == atom.Script || c.DataAtom == atom.Style {
				return
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return b.String()
}

// CollapseSpace trims s and folds internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
