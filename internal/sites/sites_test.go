package sites

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/extract"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

const googleFormPage = `<html><body>
<form><div class="freebirdFormviewerViewFormForm">
  <div role="listitem">
    <div class="M7eMe">Your full name<span class="freebirdFormviewerComponentsQuestionBaseRequiredAsterisk">*</span></div>
    <input type="text" class="whsOnd">
  </div>
  <div role="listitem">
    <div class="M7eMe">Favourite colour</div>
    <label><input type="radio" name="entry.1" value="Red"> Red</label>
    <label><input type="radio" name="entry.1" value="Blue"> Blue</label>
  </div>
  <div role="listitem">
    <div class="M7eMe">Interests</div>
    <label><input type="checkbox" value="Music"> Music</label>
    <label><input type="checkbox" value="Sport"> Sport</label>
  </div>
  <div role="listitem">
    <input type="email" id="mail">
  </div>
  <div role="listitem">
    <div class="lQ2kAd">Resume</div>
    <input type="file" accept=".pdf">
  </div>
  <input type="hidden" name="fvv" value="1">
</div></form>
</body></html>`

func parse(t *testing.T, src, url string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, url)
	require.NoError(t, err)
	return doc
}

func TestGoogleForms_Detect(t *testing.T) {
	g := GoogleForms{}
	assert.True(t, g.Detect(parse(t, googleFormPage, "https://example.com/embed")))
	assert.True(t, g.Detect(parse(t, `<div role="listitem"><input></div>`, "https://docs.google.com/forms/d/e/x/viewform")))
	assert.False(t, g.Detect(parse(t, `<form><input></form>`, "https://docs.google.com/forms/d/e/x/viewform")))
	assert.False(t, g.Detect(parse(t, `<div role="listitem"><input></div>`, "https://example.com/")))
}

func TestGoogleForms_ExtractQuestions(t *testing.T) {
	doc := parse(t, googleFormPage, "https://docs.google.com/forms/d/e/x/viewform")
	forms := GoogleForms{}.Extract(doc, extract.New(zerolog.Nop()))
	require.Len(t, forms, 1)

	form := forms[0]
	assert.Equal(t, GoogleFormID, form.ID)
	assert.Equal(t, model.KindSite, form.Kind)
	assert.Equal(t, GoogleFormsName, form.Site)
	require.Len(t, form.Fields, 5)

	name := form.Fields[0]
	assert.Equal(t, "question_0", name.Name)
	assert.Equal(t, "Your full name", name.Label)
	assert.Equal(t, model.TypeText, name.Type)
	assert.True(t, name.Required)
	assert.Equal(t, "caption", name.LabelSource)

	colour := form.Fields[1]
	assert.Equal(t, "entry.1", colour.Name)
	assert.Equal(t, model.TypeRadioGroup, colour.Type)
	assert.Equal(t, "Favourite colour", colour.Label)
	require.Len(t, colour.Options, 2)
	assert.Equal(t, "Blue", colour.Options[1].Value)

	interests := form.Fields[2]
	assert.Equal(t, "checkbox_group_2", interests.Name)
	assert.Equal(t, model.TypeCheckboxGroup, interests.Type)
	assert.Len(t, interests.Options, 2)

	mail := form.Fields[3]
	assert.Equal(t, "mail", mail.Name)
	assert.Equal(t, "Question 4", mail.Label)
	assert.Equal(t, model.TypeEmail, mail.Type)
	assert.False(t, mail.Required)

	resume := form.Fields[4]
	assert.Equal(t, model.TypeFile, resume.Type)
	assert.Equal(t, "file_4", resume.Name)
	assert.Equal(t, "Resume", resume.Label)
}

func TestGoogleForms_GridRowsStaySeparateGroups(t *testing.T) {
	doc := parse(t, `<form><div class="freebirdFormviewerViewFormForm">
  <div role="listitem">
    <div class="M7eMe">Rate us</div>
    <label><input type="radio" name="entry.5" value="1"> 1</label>
    <label><input type="radio" name="entry.5" value="2"> 2</label>
    <label><input type="radio" name="entry.6" value="1"> 1</label>
    <label><input type="radio" name="entry.6" value="2"> 2</label>
    <label><input type="radio" value="n/a"> N/A</label>
  </div>
</div></form>`, "https://docs.google.com/forms/d/e/x/viewform")

	forms := GoogleForms{}.Extract(doc, extract.New(zerolog.Nop()))
	require.Len(t, forms, 1)
	fields := forms[0].Fields
	require.Len(t, fields, 3)

	assert.Equal(t, "entry.5", fields[0].Name)
	assert.Len(t, fields[0].Options, 2)
	assert.Equal(t, "entry.6", fields[1].Name)
	assert.Len(t, fields[1].Options, 2)
	assert.Equal(t, "radio_group_0", fields[2].Name)
	require.Len(t, fields[2].Options, 1)
	assert.Equal(t, "n/a", fields[2].Options[0].Value)
	for _, f := range fields {
		assert.Equal(t, "Rate us", f.Label)
		assert.Equal(t, model.TypeRadioGroup, f.Type)
	}
}

func TestGoogleForms_FallsBackToGenericExtraction(t *testing.T) {
	doc := parse(t, `<div class="freebirdFormviewerViewFormForm"><label for="q">Q</label><input id="q"></div>`, "")
	forms := GoogleForms{}.Extract(doc, extract.New(zerolog.Nop()))
	require.Len(t, forms, 1)
	require.Len(t, forms[0].Fields, 1)
	assert.Equal(t, "Q", forms[0].Fields[0].Label)
}

type stubAdapter struct {
	name  string
	match bool
}

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Detect(*dom.Document) bool { return s.match }
func (s stubAdapter) Events() EventStrategy { return Reactive }
func (s stubAdapter) Extract(*dom.Document, *extract.Extractor) []model.DetectedForm { return nil }

func TestRegistry(t *testing.T) {
	doc := parse(t, `<p></p>`, "")
	reg := NewRegistry(stubAdapter{name: "a"}, stubAdapter{name: "b", match: true}, stubAdapter{name: "c", match: true})
	reg.Register(nil)

	a, ok := reg.Match(doc)
	require.True(t, ok)
	assert.Equal(t, "b", a.Name())

	assert.Equal(t, Reactive, reg.Strategy("c"))
	assert.Equal(t, Standard, reg.Strategy(""))
	assert.Equal(t, Standard, reg.Strategy("unknown"))

	var nilReg *Registry
	_, ok = nilReg.Match(doc)
	assert.False(t, ok)

	s, ok := StrategyByName(" Reactive ")
	require.True(t, ok)
	assert.Equal(t, Reactive, s)
	_, ok = StrategyByName("bogus")
	assert.False(t, ok)
}
