package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

func parse(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, "https://example.com/")
	require.NoError(t, err)
	return doc
}

var ignoreRefs = cmpopts.IgnoreFields(model.FieldDescriptor{}, "Control", "XPath")
var ignoreOptionRefs = cmpopts.IgnoreFields(model.Option{}, "Control")

func TestExtract_ExcludesNonDataControls(t *testing.T) {
	doc := parse(t, `<form id="f">
		<input type="hidden" name="csrf">
		<input type="submit" value="Go">
		<input type="button" value="B">
		<input type="reset">
		<input type="image" src="x.png">
		<input name="gone" style="display:none">
		<div style="visibility: hidden"><input name="ghost"></div>
		<input name="aria" aria-hidden="true">
		<input name="kept" placeholder="Kept">
	</form>`)
	form, _ := doc.ByID("f")

	got := New(zerolog.Nop()).Extract(form)

	require.Len(t, got.Fields, 1)
	assert.Equal(t, "f", got.ID)
	assert.Equal(t, "kept", got.Fields[0].Name)
	assert.Equal(t, "Kept", got.Fields[0].Label)
}

func TestExtract_EmptyContainer(t *testing.T) {
	doc := parse(t, `<form id="f"><p>No inputs here</p></form>`)
	form, _ := doc.ByID("f")

	got := New(zerolog.Nop()).Extract(form)
	assert.Empty(t, got.Fields)
	assert.Empty(t, New(zerolog.Nop()).Extract(nil).Fields)
}

func TestExtract_GroupsRadiosAndCheckboxes(t *testing.T) {
	doc := parse(t, `<form id="f">
		<fieldset><legend>Color</legend>
			<label><input type="radio" name="c" value="red"> Red</label>
			<label><input type="radio" name="c" value="blue" required> Blue</label>
			<label><input type="radio" name="c" value="green"> Green</label>
		</fieldset>
		<input name="between">
		<div><h4>Topics</h4>
			<label><input type="checkbox" name="t" value="go"> Go</label>
			<label><input type="checkbox" name="t" value="rust"> Rust</label>
		</div>
	</form>`)
	form, _ := doc.ByID("f")

	got := New(zerolog.Nop()).Extract(form).Fields

	want := []model.FieldDescriptor{
		{
			Name: "c", Type: model.TypeRadioGroup, InputType: "radio", Label: "Color", LabelSource: "group", Required: true,
			Options: []model.Option{{Value: "red", Label: "Red"}, {Value: "blue", Label: "Blue"}, {Value: "green", Label: "Green"}},
		},
		{Name: "between", Type: model.TypeText, InputType: "text", Label: "Color Red Blue Green", LabelSource: "sibling"},
		{
			Name: "t", Type: model.TypeCheckboxGroup, InputType: "checkbox", Label: "Topics", LabelSource: "group",
			Options: []model.Option{{Value: "go", Label: "Go"}, {Value: "rust", Label: "Rust"}},
		},
	}
	if diff := cmp.Diff(want, got, ignoreRefs, ignoreOptionRefs); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got[0].Options, 3)
	r2, _ := doc.First(`input[value=blue]`)
	assert.Same(t, r2, got[0].Options[1].Control)
}

func TestExtract_SelectTextareaFileAndValidation(t *testing.T) {
	doc := parse(t, `<form id="f">
		<label for="country">Country</label>
		<select id="country" name="country">
			<option value="">Pick one</option>
			<option value="US">United States</option>
		</select>
		<select name="langs" multiple aria-label="Languages"><option>Go</option><option>C</option></select>
		<textarea name="bio" placeholder="About you"></textarea>
		<input type="file" name="cv" accept=".pdf, application/msword">
		<input type="number" name="age" min="18" max="99" aria-label="Age">
		<input type="text" name="zip" pattern="[0-9]{5}" maxlength="5" aria-label="ZIP">
		<input type="password" name="pw" aria-label="Password">
	</form>`)
	form, _ := doc.ByID("f")

	got := New(zerolog.Nop()).Extract(form).Fields
	require.Len(t, got, 7)

	assert.Equal(t, model.TypeSelectSingle, got[0].Type)
	assert.Equal(t, "Country", got[0].Label)
	assert.Equal(t, []model.Option{{Value: "", Label: "Pick one"}, {Value: "US", Label: "United States"}},
		stripOptionRefs(got[0].Options))

	assert.Equal(t, model.TypeSelectMultiple, got[1].Type)
	assert.Equal(t, []model.Option{{Value: "Go", Label: "Go"}, {Value: "C", Label: "C"}}, stripOptionRefs(got[1].Options))

	assert.Equal(t, model.TypeTextarea, got[2].Type)
	assert.Equal(t, "About you", got[2].Label)

	assert.Equal(t, model.TypeFile, got[3].Type)
	assert.Equal(t, []string{".pdf", "application/msword"}, got[3].AcceptTypes)

	require.NotNil(t, got[4].Validation)
	assert.Equal(t, 18.0, *got[4].Validation.Min)
	assert.Equal(t, 99.0, *got[4].Validation.Max)

	require.NotNil(t, got[5].Validation)
	assert.Equal(t, "[0-9]{5}", got[5].Validation.Pattern)
	assert.Equal(t, 5, *got[5].Validation.MaxLength)
	assert.Nil(t, got[5].Validation.MinLength)

	assert.Equal(t, model.TypeUnsupported, got[6].Type)
	assert.Nil(t, got[0].Validation)
}

func TestExtract_DateTimeAndColorAreUnsupported(t *testing.T) {
	doc := parse(t, `<form id="f">
		<input type="date" name="dob">
		<input type="datetime-local" name="at">
		<input type="month" name="m">
		<input type="week" name="w">
		<input type="time" name="t">
		<input type="color" name="c">
		<input type="search" name="q">
	</form>`)
	form, _ := doc.ByID("f")

	got := New(zerolog.Nop()).Extract(form).Fields
	require.Len(t, got, 7)
	for _, f := range got[:6] {
		assert.Equal(t, model.TypeUnsupported, f.Type, f.Name)
	}
	assert.Equal(t, model.TypeText, got[6].Type)
}

func TestExtract_NamelessRadiosStaySeparate(t *testing.T) {
	doc := parse(t, `<form id="f"><input type="radio" id="a"><input type="radio" id="b"></form>`)
	form, _ := doc.ByID("f")
	got := New(zerolog.Nop()).Extract(form).Fields
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DomID)
	assert.Equal(t, "b", got[1].DomID)
}

func stripOptionRefs(opts []model.Option) []model.Option {
	out := make([]model.Option, len(opts))
	for i, o := range opts {
		out[i] = model.Option{Value: o.Value, Label: o.Label}
	}
	return out
}
