package extract

import (
	"strings"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

// LabelSource records which rule produced a label.
type LabelSource int

const (
	LabelNone LabelSource = iota
	LabelFor
	LabelWrapping
	LabelAria
	LabelPlaceholder
	LabelSibling
	LabelParentText
	LabelGroup
	LabelCaption
)

func (s LabelSource) String() string {
	switch s {
	case LabelFor:
		return "for"
	case LabelWrapping:
		return "wrapping-label"
	case LabelAria:
		return "aria-label"
	case LabelPlaceholder:
		return "placeholder"
	case LabelSibling:
		return "sibling"
	case LabelParentText:
		return "parent-text"
	case LabelGroup:
		return "group"
	case LabelCaption:
		return "caption"
	default:
		return "none"
	}
}

// Label is the outcome of label resolution. An unresolved label has
// Source == LabelNone and empty Text.
type Label struct {
	Text   string
	Source LabelSource
}

// Resolved reports whether any rule produced text.
func (l Label) Resolved() bool { return l.Source != LabelNone }

// ResolveLabel derives the human-readable label of a control. Rules are
// tried in a fixed order and the first non-empty result wins.
func ResolveLabel(control *dom.Element) Label {
	if control == nil {
		return Label{}
	}
	if id := control.ID(); id != "" {
		for _, l := range control.Doc().Find("label[for]") {
			if l.Attr("for") != id {
				continue
			}
			if t := l.Text(); t != "" {
				return Label{Text: t, Source: LabelFor}
			}
		}
	}

	parent := control.Parent()
	if parent != nil && parent.Tag() == "label" {
		t := parent.TextExcluding("select", "textarea")
		if v := strings.TrimSpace(control.Value()); v != "" {
			t = dom.CollapseSpace(strings.Replace(t, v, "", 1))
		}
		if t != "" {
			return Label{Text: t, Source: LabelWrapping}
		}
	}

	if t := dom.CollapseSpace(control.Attr("aria-label")); t != "" {
		return Label{Text: t, Source: LabelAria}
	}
	if t := dom.CollapseSpace(control.Attr("placeholder")); t != "" {
		return Label{Text: t, Source: LabelPlaceholder}
	}

	for s := control.PrevElementSibling(); s != nil; s = s.PrevElementSibling() {
		if s.IsControl() {
			continue
		}
		if t := s.Text(); t != "" {
			return Label{Text: t, Source: LabelSibling}
		}
		break
	}

	if parent != nil {
		if t := parent.DirectText(); t != "" {
			return Label{Text: t, Source: LabelParentText}
		}
	}
	return Label{}
}

// groupLabel names a radio or checkbox group: the enclosing fieldset's
// legend, a radiogroup's aria-label, a heading within three ancestor
// levels, and finally the label of the first member.
func groupLabel(first *dom.Element) Label {
	if fs := first.Closest("fieldset"); fs != nil {
		for _, lg := range fs.Find("legend") {
			if t := lg.Text(); t != "" {
				return Label{Text: t, Source: LabelGroup}
			}
		}
	}
	if rg := first.Closest(`[role="radiogroup"],[role="group"]`); rg != nil {
		if t := dom.CollapseSpace(rg.Attr("aria-label")); t != "" {
			return Label{Text: t, Source: LabelGroup}
		}
	}
	p := first.Parent()
	for depth := 0; p != nil && depth < 3; depth++ {
		for _, h := range p.Find(`h1,h2,h3,h4,h5,h6,legend,[role="heading"]`) {
			if t := h.Text(); t != "" {
				return Label{Text: t, Source: LabelGroup}
			}
		}
		p = p.Parent()
	}
	return ResolveLabel(first)
}
