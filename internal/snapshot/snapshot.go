// Package snapshot adapts a live browser tab to the agent's document model.
// Detection runs on a parsed capture of the page; writes are applied to the
// tab and mirrored into the capture they were planned against.
package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/browser"
	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

// Page implements the agent's Page and MutationSource over a browser
// controller.
type Page struct {
	ctrl   browser.Controller
	logger zerolog.Logger

	mu   sync.Mutex
	last *dom.Document
}

func New(ctrl browser.Controller, logger zerolog.Logger) *Page {
	return &Page{ctrl: ctrl, logger: logger.With().Str("comp", "snapshot").Logger()}
}

// Snapshot captures the tab and parses it.
func (p *Page) Snapshot(ctx context.Context) (*dom.Document, error) {
	src, err := p.ctrl.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture page: %w", err)
	}
	doc, err := dom.ParseString(src, p.ctrl.URL())
	if err != nil {
		return nil, fmt.Errorf("parse capture: %w", err)
	}
	p.mu.Lock()
	p.last = doc
	p.mu.Unlock()
	p.logger.Debug().Str("url", doc.URL()).Int("bytes", len(src)).Msg("page captured")
	return doc, nil
}

// Last returns the most recent capture.
func (p *Page) Last() (*dom.Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.last != nil
}

func (p *Page) OnMutation(ctx context.Context, fn func()) (func(), error) {
	return p.ctrl.ObserveMutations(ctx, fn)
}

// Connected reports whether el is still attached both in its capture and in
// the tab.
func (p *Page) Connected(ctx context.Context, el *dom.Element) bool {
	if el == nil || !el.Connected() {
		return false
	}
	n, err := p.ctrl.Count(ctx, el.XPath())
	if err != nil {
		p.logger.Debug().Err(err).Str("el", el.String()).Msg("count failed")
		return false
	}
	return n > 0
}

func (p *Page) SetValue(ctx context.Context, el *dom.Element, v string) error {
	if err := p.ctrl.SetValue(ctx, el.XPath(), v); err != nil {
		return err
	}
	return el.Doc().SetValue(ctx, el, v)
}

func (p *Page) SelectIndex(ctx context.Context, el *dom.Element, idx int) error {
	if err := p.ctrl.SelectIndex(ctx, el.XPath(), idx); err != nil {
		return err
	}
	return el.Doc().SelectIndex(ctx, el, idx)
}

func (p *Page) SetSelected(ctx context.Context, el *dom.Element, idx int, selected bool) error {
	if err := p.ctrl.SetSelected(ctx, el.XPath(), idx, selected); err != nil {
		return err
	}
	return el.Doc().SetSelected(ctx, el, idx, selected)
}

func (p *Page) SetChecked(ctx context.Context, el *dom.Element, checked bool) error {
	if err := p.ctrl.SetChecked(ctx, el.XPath(), checked); err != nil {
		return err
	}
	return el.Doc().SetChecked(ctx, el, checked)
}

func (p *Page) SetFiles(ctx context.Context, el *dom.Element, files []dom.File) error {
	out := make([]browser.File, 0, len(files))
	for _, f := range files {
		out = append(out, browser.File{
			Name:         f.Name,
			MIMEType:     f.MIMEType,
			Data:         f.Data,
			LastModified: f.LastModified,
		})
	}
	if err := p.ctrl.SetFiles(ctx, el.XPath(), out); err != nil {
		return err
	}
	return el.Doc().SetFiles(ctx, el, files)
}

// Focus focuses the element in the tab, where the browser fires the focus
// event itself.
func (p *Page) Focus(ctx context.Context, el *dom.Element) error {
	if err := p.ctrl.Focus(ctx, el.XPath()); err != nil {
		return err
	}
	return el.Doc().Focus(ctx, el)
}

func (p *Page) Dispatch(ctx context.Context, el *dom.Element, ev dom.Event) error {
	if err := p.ctrl.Dispatch(ctx, el.XPath(), ev.Type, ev.Bubbles); err != nil {
		return err
	}
	return el.Doc().Dispatch(ctx, el, ev)
}

// Navigate opens url in the tab and waits for it to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.ctrl.Navigate(ctx, url); err != nil {
		return err
	}
	if err := p.ctrl.WaitForStableDOM(ctx, 0); err != nil {
		p.logger.Debug().Err(err).Msg("page did not settle")
	}
	return nil
}

func (p *Page) SaveState(ctx context.Context, path string) error {
	return p.ctrl.SaveState(ctx, path)
}
