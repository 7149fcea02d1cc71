package tools

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

const page = `<form id="signup">
	<label for="e">Email</label><input id="e" name="email">
	<label><input type="checkbox" name="news"> Send me news</label>
</form>`

func newToolbox(t *testing.T, nav Navigator) (Toolbox, *dom.Document) {
	t.Helper()
	doc, err := dom.ParseString(page, "https://example.com/")
	require.NoError(t, err)
	return New(agent.NewOrchestrator(agent.Config{}, doc, zerolog.Nop()), nav), doc
}

type fakeNav struct{ opened, saved string }

func (f *fakeNav) Navigate(_ context.Context, url string) error  { f.opened = url; return nil }
func (f *fakeNav) SaveState(_ context.Context, path string) error { f.saved = path; return nil }

func names(tools []Tool) []string {
	var out []string
	for _, t := range tools {
		out = append(out, t.Name)
	}
	return out
}

func TestDescribe(t *testing.T) {
	offline, _ := newToolbox(t, nil)
	assert.Equal(t, []string{"detect_forms", "analyze_form", "get_form_data", "fill_form"}, names(offline.Describe()))

	live, _ := newToolbox(t, &fakeNav{})
	assert.Equal(t, []string{"detect_forms", "analyze_form", "get_form_data", "fill_form", "navigate", "save_state"}, names(live.Describe()))
}

func TestInvoke_DetectAnalyzeFillRead(t *testing.T) {
	tb, doc := newToolbox(t, nil)
	ctx := context.Background()

	res, err := tb.Invoke(ctx, "detect_forms", nil)
	require.NoError(t, err)
	assert.Equal(t, "detected 1 forms with 2 fields", res.Observation)

	res, err = tb.Invoke(ctx, "analyze_form", map[string]any{"formId": "signup"})
	require.NoError(t, err)
	a, ok := res.Data.(agent.Analysis)
	require.True(t, ok)
	require.Len(t, a.Fields, 2)
	assert.Equal(t, "Email", a.Fields[0].Label)

	res, err = tb.Invoke(ctx, "fill_form", map[string]any{
		"formId":   "signup",
		"userData": map[string]any{"email": "ada@example.com", "news": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fill success: 2 applied, 0 skipped", res.Observation)

	email, _ := doc.First(`input[name="email"]`)
	assert.Equal(t, "ada@example.com", email.Value())

	res, err = tb.Invoke(ctx, "get_form_data", map[string]any{"formId": "signup"})
	require.NoError(t, err)
	values, ok := res.Data.(map[string]model.ValueMap)
	require.True(t, ok)
	assert.Equal(t, model.ValueMap{"email": model.String("ada@example.com"), "news": model.Bool(true)}, values["signup"])
}

func TestInvoke_FillWithValues(t *testing.T) {
	tb, doc := newToolbox(t, nil)

	res, err := tb.Invoke(context.Background(), "fill_form", map[string]any{
		"values": map[string]any{"email": "x@y.z", "news": nil},
		"dryRun": "false",
	})
	require.NoError(t, err)
	report, ok := res.Data.(agent.FillReport)
	require.True(t, ok)
	assert.Equal(t, 1, report.Applied)

	email, _ := doc.First(`input[name="email"]`)
	assert.Equal(t, "x@y.z", email.Value())
}

func TestInvoke_Errors(t *testing.T) {
	tb, _ := newToolbox(t, nil)
	ctx := context.Background()

	_, err := tb.Invoke(ctx, "fill_form", map[string]any{"values": "email=x"})
	assert.EqualError(t, err, "field values must be object")

	_, err = tb.Invoke(ctx, "analyze_form", map[string]any{"formId": "missing"})
	assert.ErrorIs(t, err, agent.ErrFormNotFound)

	_, err = tb.Invoke(ctx, "navigate", map[string]any{"url": "https://example.com"})
	assert.EqualError(t, err, "unknown tool navigate")

	_, err = tb.Invoke(ctx, "click_text", nil)
	assert.EqualError(t, err, "unknown tool click_text")
}

func TestInvoke_Navigation(t *testing.T) {
	nav := &fakeNav{}
	tb, _ := newToolbox(t, nav)
	ctx := context.Background()

	_, err := tb.Invoke(ctx, "navigate", map[string]any{"url": "  "})
	assert.EqualError(t, err, "field url empty")

	res, err := tb.Invoke(ctx, "navigate", map[string]any{"url": "https://example.com/apply"})
	require.NoError(t, err)
	assert.Equal(t, "opened https://example.com/apply", res.Observation)
	assert.Equal(t, "https://example.com/apply", nav.opened)

	_, err = tb.Invoke(ctx, "save_state", map[string]any{"path": "state.json"})
	require.NoError(t, err)
	assert.Equal(t, "state.json", nav.saved)
}
