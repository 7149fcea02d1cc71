package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultNavTimeout = 30 * time.Second
	defaultStableWait = 2 * time.Second
)

// Controller is the slice of a browser tab the autofill agent needs. Elements
// are addressed by absolute XPath.
type Controller interface {
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	URL() string
	// Capture serializes the document with live property state and
	// computed-hidden markers folded into attributes.
	Capture(ctx context.Context) (string, error)
	Count(ctx context.Context, xpath string) (int, error)
	SetValue(ctx context.Context, xpath, value string) error
	SelectIndex(ctx context.Context, xpath string, idx int) error
	SetSelected(ctx context.Context, xpath string, idx int, selected bool) error
	SetChecked(ctx context.Context, xpath string, checked bool) error
	SetFiles(ctx context.Context, xpath string, files []File) error
	Focus(ctx context.Context, xpath string) error
	Dispatch(ctx context.Context, xpath, eventType string, bubbles bool) error
	// ObserveMutations calls fn whenever nodes that are not agent UI are
	// added to the page, including after navigations.
	ObserveMutations(ctx context.Context, fn func()) (cancel func(), err error)
	// Expose makes fn callable from page scripts as window[name]().
	Expose(ctx context.Context, name string, fn func()) error
	Evaluate(ctx context.Context, script string, arg any) (any, error)
	WaitForStableDOM(ctx context.Context, timeout time.Duration) error
	SaveState(ctx context.Context, path string) error
	Page() playwright.Page
}

// File is a file assigned to a file input.
type File struct {
	Name         string
	MIMEType     string
	Data         []byte
	LastModified time.Time
}

// LaunchOptions configures Chromium.
type LaunchOptions struct {
	Headless bool
	// Install downloads the Chromium build playwright expects before launch.
	Install bool
}

// Launcher owns playwright lifecycle.
type Launcher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

func NewLauncher(ctx context.Context, opts LaunchOptions) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: browser, headless: opts.Headless}, nil
}

// NewController opens a tab. A storage state file, when it exists, seeds
// cookies and local storage.
func (l *Launcher) NewController(ctx context.Context, storagePath string) (Controller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if strings.TrimSpace(storagePath) != "" {
		if _, err := os.Stat(storagePath); err == nil {
			opts.StorageStatePath = playwright.String(storagePath)
		}
	}
	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &controller{context: bctx, page: page, bindings: make(map[string]bool)}, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type controller struct {
	context playwright.BrowserContext
	page    playwright.Page

	mu       sync.Mutex
	bindings map[string]bool
}

func (c *controller) Page() playwright.Page {
	return c.page
}

func (c *controller) Close(ctx context.Context) error {
	_ = ctx
	if c.page != nil {
		_ = c.page.Close()
	}
	if c.context != nil {
		return c.context.Close()
	}
	return nil
}

func (c *controller) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	return wrap(err)
}

func (c *controller) URL() string { return c.page.URL() }

func (c *controller) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := c.page.Evaluate(captureScript)
	if err != nil {
		return "", wrap(err)
	}
	html, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("capture returned %T", out)
	}
	return html, nil
}

func (c *controller) Count(ctx context.Context, xpath string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.page.Locator("xpath=" + xpath).Count()
	return n, wrap(err)
}

// ErrNotFound is returned when an XPath no longer resolves in the page.
var ErrNotFound = fmt.Errorf("element not found in page")

// act runs op against the element at xpath. op is the body of a function
// receiving (el, arg).
func (c *controller) act(ctx context.Context, xpath, op string, arg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script := `({xpath, arg}) => {
		const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) return false;
		((el, arg) => {` + op + `})(el, arg);
		return true;
	}`
	out, err := c.page.Evaluate(script, map[string]any{"xpath": xpath, "arg": arg})
	if err != nil {
		return wrap(err)
	}
	if found, _ := out.(bool); !found {
		return fmt.Errorf("%w: %s", ErrNotFound, xpath)
	}
	return nil
}

func (c *controller) SetValue(ctx context.Context, xpath, value string) error {
	return c.act(ctx, xpath, setValueOp, value)
}

func (c *controller) SelectIndex(ctx context.Context, xpath string, idx int) error {
	return c.act(ctx, xpath, `el.selectedIndex = arg;`, idx)
}

func (c *controller) SetSelected(ctx context.Context, xpath string, idx int, selected bool) error {
	return c.act(ctx, xpath, `if (el.options[arg.idx]) el.options[arg.idx].selected = arg.selected;`,
		map[string]any{"idx": idx, "selected": selected})
}

func (c *controller) SetChecked(ctx context.Context, xpath string, checked bool) error {
	return c.act(ctx, xpath, `el.checked = arg;`, checked)
}

func (c *controller) SetFiles(ctx context.Context, xpath string, files []File) error {
	payload := make([]map[string]any, 0, len(files))
	for _, f := range files {
		payload = append(payload, map[string]any{
			"name":         f.Name,
			"type":         f.MIMEType,
			"data":         base64.StdEncoding.EncodeToString(f.Data),
			"lastModified": f.LastModified.UnixMilli(),
		})
	}
	return c.act(ctx, xpath, setFilesOp, payload)
}

func (c *controller) Focus(ctx context.Context, xpath string) error {
	return c.act(ctx, xpath, `el.focus();`, nil)
}

func (c *controller) Dispatch(ctx context.Context, xpath, eventType string, bubbles bool) error {
	return c.act(ctx, xpath, dispatchOp, map[string]any{"type": eventType, "bubbles": bubbles})
}

func (c *controller) Expose(ctx context.Context, name string, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bindings[name] {
		return fmt.Errorf("binding %s already exposed", name)
	}
	err := c.page.ExposeFunction(name, func(args ...interface{}) interface{} {
		fn()
		return nil
	})
	if err != nil {
		return wrap(err)
	}
	c.bindings[name] = true
	return nil
}

func (c *controller) ObserveMutations(ctx context.Context, fn func()) (func(), error) {
	var (
		mu     sync.Mutex
		active = true
	)
	err := c.Expose(ctx, mutationBinding, func() {
		mu.Lock()
		ok := active
		mu.Unlock()
		if ok {
			fn()
		}
	})
	if err != nil {
		return nil, err
	}
	if err := c.page.AddInitScript(playwright.Script{Content: playwright.String(observerScript)}); err != nil {
		return nil, wrap(err)
	}
	if _, err := c.page.Evaluate(observerScript); err != nil {
		return nil, wrap(err)
	}
	return func() {
		mu.Lock()
		active = false
		mu.Unlock()
	}, nil
}

func (c *controller) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		out any
		err error
	)
	if arg == nil {
		out, err = c.page.Evaluate(script)
	} else {
		out, err = c.page.Evaluate(script, arg)
	}
	return out, wrap(err)
}

// WaitForStableDOM waits for network idle, then for a quiet period without
// DOM mutations.
func (c *controller) WaitForStableDOM(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultStableWait
	}
	if err := c.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		_ = c.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: playwright.Float(1000),
		})
	}
	_, err := c.page.Evaluate(quietScript)
	return wrap(err)
}

func (c *controller) SaveState(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := c.context.StorageState()
	if err != nil {
		return wrap(err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
