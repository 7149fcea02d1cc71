package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// generateXPath builds an XPath for n, anchored on the nearest ancestor with
// an id and falling back to positional steps from the root.
func generateXPath(n *html.Node) string {
	var steps []string
	for c := n; c != nil && c.Type != html.DocumentNode; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(c.Data)
		if id := attr(c, "id"); id != "" {
			steps = append(steps, "//*[@id="+xpathLiteral(id)+"]")
			break
		}
		idx := 1
		for p := c.PrevSibling; p != nil; p = p.PrevSibling {
			if p.Type == html.ElementNode && strings.ToLower(p.Data) == tag {
				idx++
			}
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, idx))
	}
	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	path := strings.Join(steps, "/")
	if !strings.HasPrefix(path, "//*[@id=") {
		path = "/" + path
	}
	return path
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}
