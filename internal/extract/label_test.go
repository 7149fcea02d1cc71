package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLabel_Chain(t *testing.T) {
	doc := parse(t, `<body>
		<label for="a">  Email
			Address </label><input id="a" aria-label="ignored">
		<label>Phone <input id="b" value="555"> 555 number</label>
		<input id="c" aria-label="Search terms" placeholder="ignored">
		<input id="d" placeholder="Your city">
		<div><span>Postcode</span><input id="x"><input id="e"></div>
		<div><span> </span><input id="f"></div>
		<div>Country <input id="g"></div>
		<div><input id="h"></div>
		<label for="i"></label><input id="i" placeholder="fallback">
	</body>`)

	cases := []struct {
		id     string
		want   string
		source LabelSource
	}{
		{"a", "Email Address", LabelFor},
		{"b", "Phone number", LabelWrapping},
		{"c", "Search terms", LabelAria},
		{"d", "Your city", LabelPlaceholder},
		{"e", "Postcode", LabelSibling},
		{"g", "Country", LabelParentText},
		{"h", "", LabelNone},
		{"i", "fallback", LabelPlaceholder},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			el, ok := doc.ByID(tc.id)
			require.True(t, ok)
			got := ResolveLabel(el)
			assert.Equal(t, tc.want, got.Text)
			assert.Equal(t, tc.source, got.Source)
			assert.Equal(t, tc.source != LabelNone, got.Resolved())
		})
	}
}

func TestResolveLabel_EmptySiblingFallsThrough(t *testing.T) {
	doc := parse(t, `<div>Zip code<span> </span><input id="f"></div>`)
	el, _ := doc.ByID("f")
	got := ResolveLabel(el)
	assert.Equal(t, Label{Text: "Zip code", Source: LabelParentText}, got)
}

func TestResolveLabel_IsDeterministic(t *testing.T) {
	doc := parse(t, `<form><label>Name <input id="n"></label></form>`)
	el, _ := doc.ByID("n")
	first := ResolveLabel(el)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ResolveLabel(el))
	}
	assert.Equal(t, Label{}, ResolveLabel(nil))
}
