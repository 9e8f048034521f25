// File: internal/sink/mirror.go
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/api/schemas"
)

// Mirror performs committed actions in a live Chrome tab over CDP, so a real
// page tracks the recording session. The tab is expected to have the same
// page loaded; locator misses surface as round-trip errors.
type Mirror struct {
	log     *zap.Logger
	ctx     context.Context
	cancels []context.CancelFunc
	timeout time.Duration
}

// NewMirror attaches to a running browser via its DevTools websocket URL.
func NewMirror(parent context.Context, wsURL string, timeout time.Duration, log *zap.Logger) (*Mirror, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(parent, wsURL)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)
	// Establish the connection up front so a bad URL fails here, not on the
	// first action.
	probe, probeCancel := context.WithTimeout(ctx, timeout)
	defer probeCancel()
	if err := chromedp.Run(probe); err != nil {
		ctxCancel()
		allocCancel()
		return nil, fmt.Errorf("mirror: connect to %s: %w", wsURL, err)
	}
	return &Mirror{
		log:     log.Named("mirror"),
		ctx:     ctx,
		cancels: []context.CancelFunc{ctxCancel, allocCancel},
		timeout: timeout,
	}, nil
}

// Close tears down the CDP session.
func (m *Mirror) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
}

// Perform executes one committing action in the mirrored tab.
func (m *Mirror) Perform(ctx context.Context, a schemas.Action) error {
	if a.Kind == schemas.ActionCommit {
		return nil
	}
	sel, opt, err := cdpSelector(a.Locator)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()
	go func() {
		// Propagate caller cancellation into the CDP round-trip.
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	switch a.Kind {
	case schemas.ActionClick:
		return m.click(runCtx, sel, opt, a)
	case schemas.ActionCheck, schemas.ActionUncheck:
		js := fmt.Sprintf(`(el => { el.checked = %t; el.dispatchEvent(new Event("input", {bubbles: true})); })(%s)`,
			a.Kind == schemas.ActionCheck, lookupJS(a.Locator))
		var ignored any
		return chromedp.Run(runCtx, chromedp.Evaluate(js, &ignored))
	case schemas.ActionSelect:
		vals, _ := json.Marshal(a.Values)
		js := fmt.Sprintf(`(el => { const want = new Set(%s); for (const o of el.options) o.selected = want.has(o.value); el.dispatchEvent(new Event("input", {bubbles: true})); })(%s)`,
			string(vals), lookupJS(a.Locator))
		var ignored any
		return chromedp.Run(runCtx, chromedp.Evaluate(js, &ignored))
	case schemas.ActionPress:
		key, ok := pressKeys[a.Key]
		if !ok {
			return fmt.Errorf("mirror: unsupported key %q", a.Key)
		}
		return chromedp.Run(runCtx,
			chromedp.Focus(sel, opt),
			chromedp.KeyEvent(key, chromedp.KeyModifiers(input.Modifier(a.Modifiers))),
		)
	}
	return fmt.Errorf("mirror: cannot perform %q", a.Kind)
}

func (m *Mirror) click(ctx context.Context, sel string, opt chromedp.QueryOption, a schemas.Action) error {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(sel, &nodes, opt)); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("mirror: no node for %q", a.Locator)
	}
	return chromedp.Run(ctx, chromedp.MouseClickNode(nodes[0],
		chromedp.ButtonType(input.MouseButton(a.Button)),
		chromedp.ClickCount(a.ClickCount),
		chromedp.ButtonModifiers(input.Modifier(a.Modifiers)),
	))
}

// Record mirrors fill actions without blocking the recorder.
func (m *Mirror) Record(a schemas.Action) {
	if a.Kind != schemas.ActionFill {
		return
	}
	sel, opt, err := cdpSelector(a.Locator)
	if err != nil {
		m.log.Warn("unusable locator on record path", zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		defer cancel()
		if err := chromedp.Run(ctx, chromedp.SetValue(sel, a.Text, opt)); err != nil {
			m.log.Warn("mirrored fill failed", zap.String("locator", a.Locator), zap.Error(err))
		}
	}()
}

var pressKeys = map[string]string{
	"Tab":    kb.Tab,
	"Enter":  kb.Enter,
	"Escape": kb.Escape,
}

// cdpSelector translates a recorder locator into a chromedp selector.
func cdpSelector(loc string) (string, chromedp.QueryOption, error) {
	switch {
	case strings.HasPrefix(loc, "css="):
		return strings.TrimPrefix(loc, "css="), chromedp.ByQuery, nil
	case strings.HasPrefix(loc, "xpath="):
		return strings.TrimPrefix(loc, "xpath="), chromedp.BySearch, nil
	}
	return "", nil, fmt.Errorf("mirror: unrecognized locator %q", loc)
}

// lookupJS builds a JS expression that resolves the locator to an element.
func lookupJS(loc string) string {
	if expr, ok := strings.CutPrefix(loc, "css="); ok {
		return fmt.Sprintf("document.querySelector(%q)", expr)
	}
	expr := strings.TrimPrefix(loc, "xpath=")
	return fmt.Sprintf("document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", expr)
}
