package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/browser"
	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/model"
)

// fakeController records calls instead of driving a browser.
type fakeController struct {
	browser.Controller

	mu       sync.Mutex
	html     string
	url      string
	calls    []string
	missing  map[string]bool
	failOn   string
	bindings map[string]func()
	evals    []any
}

func newFake(html string) *fakeController {
	return &fakeController{html: html, url: "https://jobs.example.com/apply", missing: map[string]bool{}, bindings: map[string]func(){}}
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn != "" && f.failOn == call {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) URL() string                             { return f.url }
func (f *fakeController) Capture(context.Context) (string, error) { return f.html, nil }
func (f *fakeController) Page() playwright.Page                   { return nil }

func (f *fakeController) WaitForStableDOM(context.Context, time.Duration) error { return nil }

func (f *fakeController) Count(_ context.Context, xpath string) (int, error) {
	if f.missing[xpath] {
		return 0, nil
	}
	return 1, nil
}

func (f *fakeController) SetValue(_ context.Context, xpath, v string) error {
	return f.record("value " + xpath + " " + v)
}

func (f *fakeController) SelectIndex(_ context.Context, xpath string, idx int) error {
	return f.record("select " + xpath)
}

func (f *fakeController) SetSelected(_ context.Context, xpath string, idx int, selected bool) error {
	return f.record("option " + xpath)
}

func (f *fakeController) SetChecked(_ context.Context, xpath string, checked bool) error {
	return f.record("checked " + xpath)
}

func (f *fakeController) SetFiles(_ context.Context, xpath string, files []browser.File) error {
	return f.record("files " + xpath)
}

func (f *fakeController) Focus(_ context.Context, xpath string) error {
	return f.record("focus " + xpath)
}

func (f *fakeController) Dispatch(_ context.Context, xpath, typ string, _ bool) error {
	return f.record(typ + " " + xpath)
}

func (f *fakeController) Navigate(_ context.Context, url string) error {
	f.url = url
	return f.record("navigate " + url)
}

func (f *fakeController) Expose(_ context.Context, name string, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bindings[name]; ok {
		return errors.New("already exposed")
	}
	f.bindings[name] = fn
	return nil
}

func (f *fakeController) Evaluate(_ context.Context, script string, arg any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, arg)
	return nil, nil
}

func (f *fakeController) ObserveMutations(_ context.Context, fn func()) (func(), error) {
	f.mu.Lock()
	f.bindings["mutation"] = fn
	f.mu.Unlock()
	return func() {}, nil
}

const captured = `<!DOCTYPE html><html><body>
<form id="apply">
	<label for="email">Email</label><input id="email" name="email" value="old@example.com">
	<label for="bio">Bio</label><input id="bio" name="bio" data-autofill-hidden>
	<label><input type="checkbox" name="terms" checked> I agree</label>
</form>
</body></html>`

func TestPage_SnapshotParsesCapture(t *testing.T) {
	fake := newFake(captured)
	p := New(fake, zerolog.Nop())

	doc, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jobs.example.com", doc.Domain())

	email, ok := doc.ByID("email")
	require.True(t, ok)
	assert.Equal(t, "old@example.com", email.Value())
	terms, ok := doc.First(`input[name="terms"]`)
	require.True(t, ok)
	assert.True(t, terms.Checked())

	last, ok := p.Last()
	require.True(t, ok)
	assert.Same(t, doc, last)
}

func TestPage_WritesReachBrowserAndCapture(t *testing.T) {
	fake := newFake(captured)
	p := New(fake, zerolog.Nop())
	ctx := context.Background()

	doc, err := p.Snapshot(ctx)
	require.NoError(t, err)
	email, _ := doc.ByID("email")

	require.NoError(t, p.SetValue(ctx, email, "ada@example.com"))
	require.NoError(t, p.Dispatch(ctx, email, dom.NewEvent("input")))
	assert.Equal(t, "ada@example.com", email.Value())
	assert.Equal(t, []string{"input"}, doc.EventsFor(email))
	xp := email.XPath()
	assert.Equal(t, []string{"value " + xp + " ada@example.com", "input " + xp}, fake.Calls())
}

func TestPage_BrowserFailureLeavesCaptureUntouched(t *testing.T) {
	fake := newFake(captured)
	p := New(fake, zerolog.Nop())
	ctx := context.Background()

	doc, err := p.Snapshot(ctx)
	require.NoError(t, err)
	email, _ := doc.ByID("email")
	fake.failOn = "value " + email.XPath() + " x"

	assert.Error(t, p.SetValue(ctx, email, "x"))
	assert.Equal(t, "old@example.com", email.Value())
}

func TestPage_Connected(t *testing.T) {
	fake := newFake(captured)
	p := New(fake, zerolog.Nop())
	ctx := context.Background()

	doc, err := p.Snapshot(ctx)
	require.NoError(t, err)
	email, _ := doc.ByID("email")
	assert.True(t, p.Connected(ctx, email))

	fake.missing[email.XPath()] = true
	assert.False(t, p.Connected(ctx, email))
	assert.False(t, p.Connected(ctx, nil))
}

func TestPage_DrivesOrchestrator(t *testing.T) {
	fake := newFake(captured)
	p := New(fake, zerolog.Nop())
	o := agent.NewOrchestrator(agent.Config{}, p, zerolog.Nop())
	ctx := context.Background()

	forms, err := o.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	// The hidden bio field is skipped.
	assert.Len(t, forms[0].Fields, 2)

	ud := model.NewUserData(map[string]any{"email": "ada@example.com"})
	report, err := o.Fill(ctx, agent.FillRequest{UserData: &ud})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	calls := fake.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls, "value //*[@id='email'] ada@example.com")
}

func TestAffordance(t *testing.T) {
	fake := newFake(captured)
	a := NewAffordance(fake, time.Second, zerolog.Nop())
	ctx := context.Background()

	clicked := make(chan struct{}, 1)
	require.NoError(t, a.ShowTrigger(ctx, func() { clicked <- struct{}{} }))
	require.NoError(t, a.ShowTrigger(ctx, func() { clicked <- struct{}{} }))

	fake.mu.Lock()
	fire := fake.bindings[triggerBinding]
	fake.mu.Unlock()
	require.NotNil(t, fire)
	fire()
	select {
	case <-clicked:
	case <-time.After(time.Second):
		t.Fatal("trigger handler not called")
	}

	require.NoError(t, a.Indicate(ctx, false, "No fields could be filled"))
	fake.mu.Lock()
	last := fake.evals[len(fake.evals)-1]
	fake.mu.Unlock()
	assert.Equal(t, map[string]any{"state": "failure", "message": "No fields could be filled", "ttl": int64(1000)}, last)
}
