// File: internal/sink/loopback.go
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/api/schemas"
	"github.com/darkfathom/scribe-cli/internal/dom"
	"github.com/darkfathom/scribe-cli/internal/locator"
)

// Loopback performs committed actions against the in-process document by
// dispatching the synthetic events a real automation engine would. Those
// synthetic events re-enter the recorder's capture listeners, which is
// exactly the recursion the recorder's performing guard must suppress.
type Loopback struct {
	doc *dom.Document
	res locator.Resolver
	log *zap.Logger
}

// NewLoopback builds a loopback sink over the document the recorder watches.
func NewLoopback(doc *dom.Document, res locator.Resolver, log *zap.Logger) *Loopback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loopback{doc: doc, res: res, log: log.Named("loopback")}
}

// Perform executes one committing action against the document.
func (l *Loopback) Perform(ctx context.Context, a schemas.Action) error {
	if a.Kind == schemas.ActionCommit {
		// Nothing to execute; the marker only finalizes the previous action.
		return nil
	}

	matches, err := l.res.Query(ctx, a.Locator)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("loopback: no element matches %q", a.Locator)
	}
	t := matches[0]

	var cx, cy float64
	if box, ok := l.doc.BoundingBox(t); ok {
		cx, cy = box.X+box.Width/2, box.Y+box.Height/2
	}

	switch a.Kind {
	case schemas.ActionClick:
		l.doc.Dispatch(&dom.Event{
			Type:       dom.EventClick,
			Target:     t,
			X:          cx,
			Y:          cy,
			Button:     a.Button,
			Modifiers:  a.Modifiers,
			ClickCount: a.ClickCount,
		})
	case schemas.ActionCheck, schemas.ActionUncheck:
		t.SetChecked(a.Kind == schemas.ActionCheck)
		l.doc.Dispatch(&dom.Event{Type: dom.EventInput, Target: t, X: cx, Y: cy})
	case schemas.ActionSelect:
		t.SetSelectedValues(a.Values)
		l.doc.Dispatch(&dom.Event{Type: dom.EventInput, Target: t, X: cx, Y: cy})
	case schemas.ActionPress:
		l.doc.Dispatch(&dom.Event{Type: dom.EventKeyDown, Target: t, Key: a.Key, Modifiers: a.Modifiers})
	default:
		return fmt.Errorf("loopback: cannot perform %q", a.Kind)
	}
	return nil
}

// Record is a no-op: the page already holds the typed value, the record path
// only logs.
func (l *Loopback) Record(schemas.Action) {}
