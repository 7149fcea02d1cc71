package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/browser"
	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

const triggerBinding = "__autofillTrigger"

const showTriggerScript = `() => {
	if (document.querySelector('[` + dom.UIMarker + `="trigger"]') || !document.body) return false;
	const btn = document.createElement('button');
	btn.type = 'button';
	btn.textContent = 'Fill Form';
	btn.setAttribute('` + dom.UIMarker + `', 'trigger');
	btn.style.cssText = 'position:fixed;bottom:20px;right:20px;z-index:2147483647;padding:10px 16px;border:0;border-radius:6px;background:#1a73e8;color:#fff;font:14px sans-serif;cursor:pointer;';
	btn.addEventListener('click', (ev) => {
		ev.preventDefault();
		btn.remove();
		window.` + triggerBinding + `();
	});
	document.body.appendChild(btn);
	return true;
}`

const hideTriggerScript = `() => {
	document.querySelectorAll('[` + dom.UIMarker + `="trigger"]').forEach((el) => el.remove());
}`

const indicateScript = `({state, message, ttl}) => {
	if (!document.body) return;
	const div = document.createElement('div');
	div.setAttribute('role', 'status');
	div.setAttribute('` + dom.UIMarker + `', 'indicator');
	div.setAttribute('data-state', state);
	div.textContent = message;
	div.style.cssText = 'position:fixed;bottom:20px;right:20px;z-index:2147483647;padding:10px 16px;border-radius:6px;color:#fff;font:14px sans-serif;background:' + (state === 'success' ? '#188038' : '#d93025') + ';';
	document.body.appendChild(div);
	setTimeout(() => div.remove(), ttl);
}`

// Affordance draws the trigger and indicator inside the tab.
type Affordance struct {
	ctrl   browser.Controller
	ttl    time.Duration
	logger zerolog.Logger

	bindOnce sync.Once
	bindErr  error

	mu      sync.Mutex
	onClick func()
}

func NewAffordance(ctrl browser.Controller, ttl time.Duration, logger zerolog.Logger) *Affordance {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Affordance{ctrl: ctrl, ttl: ttl, logger: logger}
}

func (a *Affordance) click() {
	a.mu.Lock()
	fn := a.onClick
	a.mu.Unlock()
	if fn == nil {
		a.logger.Debug().Msg("trigger clicked with no handler")
		return
	}
	fn()
}

func (a *Affordance) ShowTrigger(ctx context.Context, onClick func()) error {
	a.bindOnce.Do(func() {
		a.bindErr = a.ctrl.Expose(ctx, triggerBinding, a.click)
	})
	if a.bindErr != nil {
		return a.bindErr
	}
	a.mu.Lock()
	a.onClick = onClick
	a.mu.Unlock()
	_, err := a.ctrl.Evaluate(ctx, showTriggerScript, nil)
	return err
}

func (a *Affordance) HideTrigger(ctx context.Context) error {
	_, err := a.ctrl.Evaluate(ctx, hideTriggerScript, nil)
	return err
}

func (a *Affordance) Indicate(ctx context.Context, ok bool, message string) error {
	state := "success"
	if !ok {
		state = "failure"
	}
	_, err := a.ctrl.Evaluate(ctx, indicateScript, map[string]any{
		"state":   state,
		"message": message,
		"ttl":     a.ttl.Milliseconds(),
	})
	return err
}
