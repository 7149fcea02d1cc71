package sites

import (
	"fmt"
	"strings"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/extract"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

const (
	GoogleFormsName = "google-forms"
	GoogleFormID    = "google-form"

	googleFormsRoot     = ".freebirdFormviewerViewFormForm"
	googleQuestionBlock = `div[role="listitem"], .freebirdFormviewerComponentsQuestionBaseRoot`
	googleCaption       = ".M7eMe, .lQ2kAd, .freebirdFormviewerComponentsQuestionBaseTitle"
	googleRequiredMark  = `.freebirdFormviewerComponentsQuestionBaseRequiredAsterisk, [aria-label="Required question"]`
	googleTextControls  = `input[type="text"], input[type="email"], input[type="tel"], input[type="number"], input[type="url"], input[type="date"], input:not([type]), textarea`
)

// GoogleForms reads Google Forms question blocks, where captions are not
// associated with their inputs through any standard mechanism.
type GoogleForms struct{}

func (GoogleForms) Name() string { return GoogleFormsName }
func (GoogleForms) Events() EventStrategy { return Reactive }

// Detect matches the form viewer root marker, or a forms URL that contains
// question blocks.
func (GoogleForms) Detect(doc *dom.Document) bool {
	if _, ok := doc.First(googleFormsRoot); ok {
		return true
	}
	if !strings.Contains(doc.URL(), "docs.google.com/forms") {
		return false
	}
	_, ok := doc.First(googleQuestionBlock)
	return ok
}

// Extract yields a single form keyed by question captions. When no block
// produces a field the whole body goes through generic extraction.
func (g GoogleForms) Extract(doc *dom.Document, ex *extract.Extractor) []model.DetectedForm {
	form := model.DetectedForm{ID: GoogleFormID, Kind: model.KindSite, Site: GoogleFormsName}

	for i, block := range outermostBlocks(doc.Find(googleQuestionBlock)) {
		form.Fields = append(form.Fields, g.question(ex, block, i)...)
	}
	if len(form.Fields) == 0 {
		body := doc.Body()
		if body == nil {
			return nil
		}
		form.Fields = ex.Describe(extract.Candidates(body))
	}
	if len(form.Fields) == 0 {
		return nil
	}
	return []model.DetectedForm{form}
}

func (GoogleForms) question(ex *extract.Extractor, block *dom.Element, idx int) []model.FieldDescriptor {
	caption := ""
	for _, c := range block.Find(googleCaption) {
		if t := c.Text(); t != "" {
			caption = strings.TrimSpace(strings.TrimSuffix(t, "*"))
			break
		}
	}
	if caption == "" {
		caption = fmt.Sprintf("Question %d", idx+1)
	}
	_, marked := firstOf(block.Find(googleRequiredMark))

	finish := func(f model.FieldDescriptor, fallback string) model.FieldDescriptor {
		f.Label = caption
		f.LabelSource = extract.LabelCaption.String()
		if f.Name == "" {
			f.Name = f.DomID
		}
		if f.Name == "" {
			f.Name = fallback
		}
		f.Required = f.Required || marked
		return f
	}

	var out []model.FieldDescriptor
	for _, el := range block.Find(googleTextControls) {
		if extract.Extractable(el) {
			out = append(out, finish(ex.Field(el), fmt.Sprintf("question_%d", idx)))
		}
	}
	for _, members := range byName(extractable(block.Find(`input[type="radio"]`))) {
		out = append(out, finish(ex.Group(model.TypeRadioGroup, members), fmt.Sprintf("radio_group_%d", idx)))
	}
	for _, members := range byName(extractable(block.Find(`input[type="checkbox"]`))) {
		out = append(out, finish(ex.Group(model.TypeCheckboxGroup, members), fmt.Sprintf("checkbox_group_%d", idx)))
	}
	for _, el := range extractable(block.Find("select")) {
		out = append(out, finish(ex.Field(el), fmt.Sprintf("select_%d", idx)))
	}
	for _, el := range extractable(block.Find(`input[type="file"]`)) {
		out = append(out, finish(ex.Field(el), fmt.Sprintf("file_%d", idx)))
	}
	return out
}

// outermostBlocks drops blocks nested inside another block, which happens
// when legacy and current class names coexist.
func outermostBlocks(blocks []*dom.Element) []*dom.Element {
	var out []*dom.Element
	for _, b := range blocks {
		nested := false
		for _, o := range out {
			if o.Contains(b) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, b)
		}
	}
	return out
}

// byName splits choice controls into groups sharing a name, in document
// order. Unnamed controls form one group of their own.
func byName(els []*dom.Element) [][]*dom.Element {
	var (
		groups [][]*dom.Element
		index  = make(map[string]int)
	)
	for _, el := range els {
		name := el.Name()
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], el)
	}
	return groups
}

func extractable(els []*dom.Element) []*dom.Element {
	var out []*dom.Element
	for _, el := range els {
		if extract.Extractable(el) {
			out = append(out, el)
		}
	}
	return out
}

func firstOf(els []*dom.Element) (*dom.Element, bool) {
	if len(els) == 0 {
		return nil, false
	}
	return els[0], true
}
