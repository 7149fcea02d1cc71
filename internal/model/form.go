// Package model holds the types shared by detection, resolution and writing.
package model

import (
	"strings"
	"time"
	"unicode"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

// ControlType classifies a field for value resolution and writing.
type ControlType string

const (
	TypeText           ControlType = "text"
	TypeEmail          ControlType = "email"
	TypeTel            ControlType = "tel"
	TypeNumber         ControlType = "number"
	TypeTextarea       ControlType = "textarea"
	TypeSelectSingle   ControlType = "select-single"
	TypeSelectMultiple ControlType = "select-multiple"
	TypeRadioGroup     ControlType = "radio-group"
	TypeCheckboxGroup  ControlType = "checkbox-group"
	TypeFile           ControlType = "file"
	TypeUnsupported    ControlType = "unsupported"
)

// IsChoice reports types whose value must match one of Options.
func (t ControlType) IsChoice() bool {
	switch t {
	case TypeSelectSingle, TypeSelectMultiple, TypeRadioGroup, TypeCheckboxGroup:
		return true
	}
	return false
}

// IsTextLike reports types written through the value property.
func (t ControlType) IsTextLike() bool {
	switch t {
	case TypeText, TypeEmail, TypeTel, TypeNumber, TypeTextarea:
		return true
	}
	return false
}

// MultiValued reports types that accept several options at once.
func (t ControlType) MultiValued() bool {
	return t == TypeSelectMultiple || t == TypeCheckboxGroup
}

// Validation carries the HTML constraint attributes of a control.
type Validation struct {
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
}

// Option is one choice of a select, radio group or checkbox group.
type Option struct {
	Value   string       `json:"value"`
	Label   string       `json:"label"`
	Control *dom.Element `json:"-"`
}

// FieldDescriptor is the normalized description of one logical field.
// Control is owned by the detection pass that produced it.
type FieldDescriptor struct {
	Control     *dom.Element `json:"-"`
	XPath       string       `json:"xpath,omitempty"`
	Name        string       `json:"name,omitempty"`
	DomID       string       `json:"id,omitempty"`
	Type        ControlType  `json:"type"`
	InputType   string       `json:"inputType,omitempty"`
	Label       string       `json:"label"`
	LabelSource string       `json:"labelSource,omitempty"`
	Required    bool         `json:"required"`
	Validation  *Validation  `json:"validation,omitempty"`
	Options     []Option     `json:"options,omitempty"`
	AcceptTypes []string     `json:"acceptTypes,omitempty"`
}

// Key identifies the field in a ValueMap: name, else id, else the
// normalized label. An empty key means the field cannot be addressed.
func (f FieldDescriptor) Key() string {
	if f.Name != "" {
		return f.Name
	}
	if f.DomID != "" {
		return f.DomID
	}
	return NormalizeKey(f.Label)
}

// FormKind tells where a DetectedForm came from.
type FormKind string

const (
	KindForm    FormKind = "form"
	KindImplied FormKind = "implied"
	KindSite    FormKind = "site"
)

// DetectedForm is one logical form found by a detection pass.
type DetectedForm struct {
	ID     string            `json:"id"`
	Kind   FormKind          `json:"kind"`
	Site   string            `json:"site,omitempty"`
	Fields []FieldDescriptor `json:"fields"`
}

// DetectedFormsNotification is published after each detection pass that
// found at least one form.
type DetectedFormsNotification struct {
	URL        string         `json:"url"`
	Domain     string         `json:"domain"`
	Forms      []DetectedForm `json:"forms"`
	DetectedAt time.Time      `json:"detectedAt"`
}

// CountFields sums the fields of forms.
func CountFields(forms []DetectedForm) int {
	n := 0
	for _, f := range forms {
		n += len(f.Fields)
	}
	return n
}

// NormalizeKey lowercases s and drops everything that is not a letter or a
// digit, so "First Name", "first_name" and "firstName" collide.
func NormalizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
