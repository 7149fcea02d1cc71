// Package extract turns a container's controls into field descriptors.
package extract

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// ControlSelector matches every element the extractor considers.
const ControlSelector = "input, select, textarea"

var excludedInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// Extractor builds FieldDescriptors. It keeps no state between calls.
type Extractor struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// InputLike reports whether el is a control of a kind that can carry user
// data, regardless of visibility.
func InputLike(el *dom.Element) bool {
	if !el.IsControl() {
		return false
	}
	return !excludedInputTypes[el.InputType()]
}

// Extractable reports whether el is an input-like control that is rendered.
func Extractable(el *dom.Element) bool {
	return InputLike(el) && !el.Hidden() && !el.AriaHidden()
}

// Candidates returns the extractable controls under container in document
// order.
func Candidates(container *dom.Element) []*dom.Element {
	if container == nil {
		return nil
	}
	var out []*dom.Element
	for _, el := range container.Find(ControlSelector) {
		if Extractable(el) {
			out = append(out, el)
		}
	}
	return out
}

// Extract describes every extractable control under container. An empty
// container yields a form with no fields.
func (e *Extractor) Extract(container *dom.Element) model.DetectedForm {
	form := model.DetectedForm{Kind: model.KindForm}
	if container == nil {
		return form
	}
	form.ID = container.ID()
	if form.ID == "" {
		form.ID = container.Name()
	}
	form.Fields = e.Describe(Candidates(container))
	return form
}

// Describe builds descriptors for controls, which must be in document
// order. Radios and checkboxes sharing a name collapse into one group
// placed where the first member appears.
func (e *Extractor) Describe(controls []*dom.Element) []model.FieldDescriptor {
	type slot struct {
		field   *model.FieldDescriptor
		members []*dom.Element
		typ     model.ControlType
	}
	var slots []*slot
	groups := make(map[string]*slot)

	for _, el := range controls {
		switch t := el.InputType(); t {
		case "radio", "checkbox":
			typ := model.TypeRadioGroup
			if t == "checkbox" {
				typ = model.TypeCheckboxGroup
			}
			name := el.Name()
			if name != "" {
				key := t + "\x00" + name
				if s, ok := groups[key]; ok {
					s.members = append(s.members, el)
					continue
				}
				s := &slot{typ: typ, members: []*dom.Element{el}}
				groups[key] = s
				slots = append(slots, s)
				continue
			}
			slots = append(slots, &slot{typ: typ, members: []*dom.Element{el}})
		default:
			f := e.Field(el)
			slots = append(slots, &slot{field: &f})
		}
	}

	out := make([]model.FieldDescriptor, 0, len(slots))
	for _, s := range slots {
		if s.field != nil {
			out = append(out, *s.field)
			continue
		}
		out = append(out, e.Group(s.typ, s.members))
	}
	e.logger.Debug().Int("controls", len(controls)).Int("fields", len(out)).Msg("extracted")
	return out
}

// Field describes a single non-grouped control.
func (e *Extractor) Field(el *dom.Element) model.FieldDescriptor {
	label := ResolveLabel(el)
	f := model.FieldDescriptor{
		Control:     el,
		XPath:       el.XPath(),
		Name:        el.Name(),
		DomID:       el.ID(),
		Type:        classify(el),
		InputType:   el.InputType(),
		Label:       label.Text,
		LabelSource: label.Source.String(),
		Required:    el.Required(),
		Validation:  validation(el),
	}
	switch f.Type {
	case model.TypeSelectSingle, model.TypeSelectMultiple:
		for _, o := range el.Options() {
			f.Options = append(f.Options, model.Option{
				Value:   o.OptionValue(),
				Label:   o.Text(),
				Control: o,
			})
		}
	case model.TypeFile:
		f.AcceptTypes = splitAccept(el.Attr("accept"))
	}
	return f
}

// Group describes radio or checkbox members as one field. Members must be
// non-empty.
func (e *Extractor) Group(typ model.ControlType, members []*dom.Element) model.FieldDescriptor {
	first := members[0]
	label := groupLabel(first)
	f := model.FieldDescriptor{
		Control:     first,
		XPath:       first.XPath(),
		Name:        first.Name(),
		DomID:       first.ID(),
		Type:        typ,
		InputType:   first.InputType(),
		Label:       label.Text,
		LabelSource: label.Source.String(),
	}
	for _, m := range members {
		if m.Required() {
			f.Required = true
		}
		optLabel := ResolveLabel(m).Text
		if optLabel == "" {
			optLabel = m.Value()
		}
		f.Options = append(f.Options, model.Option{
			Value:   m.Value(),
			Label:   optLabel,
			Control: m,
		})
	}
	return f
}

func classify(el *dom.Element) model.ControlType {
	switch el.Tag() {
	case "textarea":
		return model.TypeTextarea
	case "select":
		if el.Multiple() {
			return model.TypeSelectMultiple
		}
		return model.TypeSelectSingle
	}
	switch el.InputType() {
	case "text", "search", "url":
		return model.TypeText
	case "email":
		return model.TypeEmail
	case "tel":
		return model.TypeTel
	case "number", "range":
		return model.TypeNumber
	case "file":
		return model.TypeFile
	case "radio":
		return model.TypeRadioGroup
	case "checkbox":
		return model.TypeCheckboxGroup
	}
	return model.TypeUnsupported
}

func validation(el *dom.Element) *model.Validation {
	v := model.Validation{
		Pattern:   el.Attr("pattern"),
		Min:       parseFloat(el.Attr("min")),
		Max:       parseFloat(el.Attr("max")),
		MinLength: parseInt(el.Attr("minlength")),
		MaxLength: parseInt(el.Attr("maxlength")),
	}
	if v.Pattern == "" && v.Min == nil && v.Max == nil && v.MinLength == nil && v.MaxLength == nil {
		return nil
	}
	return &v
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func splitAccept(accept string) []string {
	var out []string
	for _, part := range strings.Split(accept, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
