package locate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/extract"
	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/sites"
)

func parse(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, "https://shop.example.com/checkout")
	require.NoError(t, err)
	return doc
}

func fieldKeys(forms []model.DetectedForm) map[string][]string {
	out := make(map[string][]string)
	for _, f := range forms {
		for _, fd := range f.Fields {
			out[f.ID] = append(out[f.ID], fd.Key())
		}
	}
	return out
}

func TestLocate_RealAndImpliedForms(t *testing.T) {
	doc := parse(t, `<body>
		<form id="login"><input name="user"><input type="password" name="pw"><button>Go</button></form>
		<form><input name="q"></form>
		<form name="empty"><input type="hidden" name="t"></form>
		<div class="newsletter">
			<div><label>Email<input name="nl_email"></label></div>
			<div><label>Name<input name="nl_name"></label></div>
		</div>
		<section><input name="lonely"></section>
		<div><input name="a1"><select name="a2"><option>x</option></select></div>
	</body>`)

	forms := NewLocator(zerolog.Nop()).Locate(doc)

	want := map[string][]string{
		"login":          {"user", "pw"},
		"form-1":         {"q"},
		"implied-form-0": {"nl_email", "nl_name"},
		"implied-form-1": {"a1", "a2"},
	}
	if diff := cmp.Diff(want, fieldKeys(forms)); diff != "" {
		t.Fatalf("forms mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, forms, 4)
	assert.Equal(t, model.KindForm, forms[0].Kind)
	assert.Equal(t, model.KindImplied, forms[2].Kind)
}

func TestLocate_ImpliedDepthLimit(t *testing.T) {
	doc := parse(t, `<body><div id="outer">
		<div><div><div><input name="deep1"></div></div></div>
		<div><div><div><input name="deep2"></div></div></div>
	</div></body>`)

	assert.Empty(t, NewLocator(zerolog.Nop()).Locate(doc), "cluster root is four levels up")

	forms := NewLocator(zerolog.Nop(), WithMaxDepth(4)).Locate(doc)
	assert.Equal(t, map[string][]string{"implied-form-0": {"deep1", "deep2"}}, fieldKeys(forms))
}

func TestLocate_NoControlClaimedTwice(t *testing.T) {
	doc := parse(t, `<body>
		<div id="outer">
			<input name="o1">
			<input name="o2">
			<div id="inner"><input name="i1"><input name="i2"></div>
		</div>
		<form id="f"><div><input name="f1"><input name="f2"></div></form>
	</body>`)

	forms := NewLocator(zerolog.Nop()).Locate(doc)

	seen := make(map[*dom.Element]string)
	for _, f := range forms {
		for _, fd := range f.Fields {
			if prev, dup := seen[fd.Control]; dup {
				t.Fatalf("%s claimed by %s and %s", fd.Key(), prev, f.ID)
			}
			seen[fd.Control] = f.ID
		}
	}
	assert.Len(t, seen, 6)
}

func TestLocate_IsIdempotent(t *testing.T) {
	doc := parse(t, `<body><form id="f"><label for="e">Email</label><input id="e" type="email">
		<select name="s"><option>a</option></select></form>
		<div><input name="x"><input name="y"></div></body>`)
	l := NewLocator(zerolog.Nop())

	first := l.Locate(doc)
	second := l.Locate(doc)

	opts := cmp.Options{
		cmpopts.IgnoreFields(model.FieldDescriptor{}, "Control"),
		cmpopts.IgnoreFields(model.Option{}, "Control"),
	}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Fatalf("second pass differs (-first +second):\n%s", diff)
	}
	for i := range first {
		for j := range first[i].Fields {
			assert.Same(t, first[i].Fields[j].Control, second[i].Fields[j].Control)
		}
	}
}

func TestLocate_SiteAdapterBypassesGenericDetection(t *testing.T) {
	doc := parse(t, `<body><form id="real"><input name="ignored"></form>
		<div class="freebirdFormviewerViewFormForm">
			<div role="listitem"><div class="M7eMe">Name</div><input type="text"></div>
		</div></body>`)

	forms := NewLocator(zerolog.Nop()).Locate(doc)

	require.Len(t, forms, 1)
	assert.Equal(t, sites.GoogleFormID, forms[0].ID)
	assert.Equal(t, sites.GoogleFormsName, forms[0].Site)
}

type panicAdapter struct{}

func (panicAdapter) Name() string { return "boom" }
func (panicAdapter) Detect(*dom.Document) bool { return true }
func (panicAdapter) Events() sites.EventStrategy { return sites.Standard }
func (panicAdapter) Extract(*dom.Document, *extract.Extractor) []model.DetectedForm {
	panic("malformed subtree")
}

func TestLocate_RecoversFromExtractionPanic(t *testing.T) {
	doc := parse(t, `<form><input name="a"></form>`)
	l := NewLocator(zerolog.Nop(), WithRegistry(sites.NewRegistry(panicAdapter{})))

	assert.NotPanics(t, func() {
		assert.Empty(t, l.Locate(doc))
	})
	assert.Error(t, guard(func() { panic("x") }))
	assert.NoError(t, guard(func() {}))
}

func TestLocate_EmptyDocument(t *testing.T) {
	assert.Empty(t, NewLocator(zerolog.Nop()).Locate(parse(t, `<p>nothing</p>`)))
	assert.Empty(t, NewLocator(zerolog.Nop()).Locate(nil))
}
