package dom

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Render writes the document as HTML with current property state folded
// back into attributes, so filled values survive serialization.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	clone := d.cloneWithState(d.root)
	d.mu.RUnlock()
	return html.Render(w, clone)
}

func (d *Document) cloneWithState(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	s, dirty := d.props[n]
	if n.Type == html.ElementNode && dirty {
		switch n.DataAtom {
		case atom.Input:
			if s.value != nil {
				setAttr(c, "value", *s.value)
			}
			if s.checked != nil {
				if *s.checked {
					setAttr(c, "checked", "")
				} else {
					removeAttr(c, "checked")
				}
			}
		case atom.Option:
			if s.selected != nil {
				if *s.selected {
					setAttr(c, "selected", "")
				} else {
					removeAttr(c, "selected")
				}
			}
		case atom.Textarea:
			if s.value != nil {
				c.AppendChild(&html.Node{Type: html.TextNode, Data: *s.value})
				return c
			}
		}
	}
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		c.AppendChild(d.cloneWithState(k))
	}
	return c
}

// HTML renders the document to a string.
func (d *Document) HTML() (string, error) {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}
