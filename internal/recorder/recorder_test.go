package recorder_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/api/schemas"
	"github.com/darkfathom/scribe-cli/internal/dom"
	"github.com/darkfathom/scribe-cli/internal/locator"
	"github.com/darkfathom/scribe-cli/internal/recorder"
)

const pageHTML = `
	<html>
	<body>
		<button id="save">Save</button>
		<input id="name" type="text">
		<input id="subscribe" type="checkbox">
		<select id="color">
			<option value="red">Red</option>
			<option value="blue" selected>Blue</option>
		</select>
		<div class="card">one</div>
		<div class="card">two</div>
		<div class="card">three</div>
	</body>
	</html>
	`

// captureSink collects emitted actions and can stall or hook the committing
// round-trip.
type captureSink struct {
	mu        sync.Mutex
	performed []schemas.Action
	recorded  []schemas.Action
	gate      chan struct{}
	onPerform func(schemas.Action)
}

func (s *captureSink) Perform(_ context.Context, a schemas.Action) error {
	s.mu.Lock()
	s.performed = append(s.performed, a)
	gate := s.gate
	hook := s.onPerform
	s.mu.Unlock()
	if hook != nil {
		hook(a)
	}
	if gate != nil {
		<-gate
	}
	return nil
}

func (s *captureSink) Record(a schemas.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, a)
}

func (s *captureSink) setGate(gate chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = gate
}

func (s *captureSink) performedKinds() []schemas.ActionKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]schemas.ActionKind, len(s.performed))
	for i, a := range s.performed {
		kinds[i] = a.Kind
	}
	return kinds
}

func (s *captureSink) performedOf(kind schemas.ActionKind) []schemas.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schemas.Action
	for _, a := range s.performed {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (s *captureSink) recordedActions() []schemas.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.Action, len(s.recorded))
	copy(out, s.recorded)
	return out
}

type rig struct {
	doc  *dom.Document
	res  locator.Resolver
	rec  *recorder.Recorder
	sink *captureSink

	mu         sync.Mutex
	highlights []string
}

func newRig(t *testing.T, markup string) *rig {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(markup), dom.Rect{Width: 400, Height: 400}, zap.NewNop())
	require.NoError(t, err)

	r := &rig{doc: doc, sink: &captureSink{}}
	r.res = locator.NewResolver(doc, nil)
	r.rec = recorder.New(doc, r.res, r.sink, recorder.Options{
		ThrottleWindow: 10 * time.Millisecond,
	}, zap.NewNop())
	r.rec.OnHighlight = func(loc string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.highlights = append(r.highlights, loc)
	}
	t.Cleanup(r.rec.Close)
	return r
}

func (r *rig) element(t *testing.T, loc string) *dom.Element {
	t.Helper()
	matches, err := r.res.Query(context.Background(), loc)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no element for %s", loc)
	return matches[0]
}

func (r *rig) lastHighlight() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.highlights) == 0 {
		return "<none>"
	}
	return r.highlights[len(r.highlights)-1]
}

// hover moves the pointer onto the element and waits for the locator commit.
func (r *rig) hover(t *testing.T, loc string) {
	t.Helper()
	el := r.element(t, loc)
	before := len(r.sink.performedOf(schemas.ActionCommit))
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: el})
	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionCommit)) > before && r.lastHighlight() == loc
	}, time.Second, 2*time.Millisecond, "hover over %s never committed", loc)
}

func TestEnsureArmedIsIdempotent(t *testing.T) {
	r := newRig(t, pageHTML)

	r.rec.EnsureArmed()
	installed := r.doc.ListenerCount()
	require.Equal(t, 6, installed)

	// Marker present: zero listener churn.
	r.rec.EnsureArmed()
	r.rec.EnsureArmed()
	assert.Equal(t, installed, r.doc.ListenerCount())
}

func TestRearmAfterRootReplacement(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#save")

	require.NoError(t, r.doc.ReplaceRoot(strings.NewReader(pageHTML)))
	assert.Equal(t, 0, r.doc.ListenerCount(), "navigation drops all listeners")

	r.rec.EnsureArmed()
	assert.Equal(t, 6, r.doc.ListenerCount())

	// Hover state from the old root is gone: a click is swallowed.
	ev := &dom.Event{Type: dom.EventClick, Target: r.element(t, "css=#save"), Button: schemas.ButtonLeft}
	r.doc.Dispatch(ev)
	assert.True(t, ev.Consumed())
	assert.Empty(t, r.sink.performedOf(schemas.ActionClick))
}

func TestHoverCommitAndHighlight(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()

	r.hover(t, "css=#save")

	boxes := r.rec.Overlay().VisibleBoxes()
	require.Len(t, boxes, 1)
	_, shown := r.rec.Overlay().TooltipRect()
	assert.True(t, shown)
}

func TestHoverCoalescingDropsIntermediate(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()

	// A then B inside one throttle window: only B's resolution survives.
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: r.element(t, "css=#save")})
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: r.element(t, "css=#name")})

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionCommit)) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, "css=#name", r.lastHighlight())

	// Settled; no further commit arrives for the replaced hover.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, r.sink.performedOf(schemas.ActionCommit), 1)
}

func TestHoverReturnWithinWindowCommitsOnce(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	a := r.element(t, "css=#save")
	b := r.element(t, "css=#name")

	// A, then B, then back to A inside one throttle window: the pointer
	// converges where it started and exactly one commit lands, for A.
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: a})
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: b})
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: a})

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionCommit)) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, "css=#save", r.lastHighlight())

	// An excursion to B and back after the commit resolves to the locator
	// already tracked, so it is discarded without a duplicate commit.
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: b})
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: a})

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, r.sink.performedOf(schemas.ActionCommit), 1)
	assert.Equal(t, "css=#save", r.lastHighlight())
}

func TestHoverSameElementDoesNotRecommit(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#save")

	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerMove, Target: r.element(t, "css=#save")})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, r.sink.performedOf(schemas.ActionCommit), 1)
}

func TestClickRequiresHoveredLocator(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()

	ev := &dom.Event{Type: dom.EventClick, Target: r.element(t, "css=#save"), Button: schemas.ButtonLeft, ClickCount: 1}
	r.doc.Dispatch(ev)

	assert.True(t, ev.Consumed(), "clicks are always captured")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, r.sink.performedOf(schemas.ActionClick))
}

func TestClickEmitsActionWithHoveredLocator(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#save")

	ev := &dom.Event{
		Type:       dom.EventClick,
		Target:     r.element(t, "css=#save"),
		Button:     schemas.ButtonRight,
		Modifiers:  schemas.ModifierCtrl | schemas.ModifierShift,
		ClickCount: 2,
	}
	r.doc.Dispatch(ev)
	assert.True(t, ev.Consumed())

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionClick)) == 1
	}, time.Second, 2*time.Millisecond)

	a := r.sink.performedOf(schemas.ActionClick)[0]
	assert.Equal(t, "css=#save", a.Locator)
	assert.Equal(t, schemas.ButtonRight, a.Button)
	assert.Equal(t, 2, a.ClickCount)
	assert.True(t, a.Modifiers.Has(schemas.ModifierCtrl))
	assert.True(t, a.Modifiers.Has(schemas.ModifierShift))
}

func TestCheckboxClickBecomesCheckAction(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#subscribe")

	box := r.element(t, "css=#subscribe")
	require.False(t, box.Checked())

	// The click passes through; the default toggle fires input, which the
	// recorder translates from the resulting state.
	ev := &dom.Event{Type: dom.EventClick, Target: box, Button: schemas.ButtonLeft, ClickCount: 1}
	r.doc.Dispatch(ev)
	assert.False(t, ev.Consumed(), "checkbox clicks reach the page")
	assert.True(t, box.Checked())

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionCheck)) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Empty(t, r.sink.performedOf(schemas.ActionClick), "never a click action for a checkbox")

	// Toggling back records uncheck.
	r.doc.Dispatch(&dom.Event{Type: dom.EventClick, Target: box, Button: schemas.ButtonLeft, ClickCount: 1})
	assert.False(t, box.Checked())
	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionUncheck)) == 1
	}, time.Second, 2*time.Millisecond)
}

func TestSelectChangeBecomesSelectAction(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#color")

	sel := r.element(t, "css=#color")
	sel.SetSelectedValues([]string{"red"})
	ev := &dom.Event{Type: dom.EventInput, Target: sel}
	r.doc.Dispatch(ev)
	assert.True(t, ev.Consumed())

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionSelect)) == 1
	}, time.Second, 2*time.Millisecond)
	a := r.sink.performedOf(schemas.ActionSelect)[0]
	assert.Equal(t, []string{"red"}, a.Values)
}

func TestTextEntryTravelsRecordPath(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#name")

	field := r.element(t, "css=#name")
	field.SetValue("ada")
	ev := &dom.Event{Type: dom.EventInput, Target: field}
	r.doc.Dispatch(ev)

	assert.False(t, ev.Consumed(), "typing must reach the page")
	require.Eventually(t, func() bool {
		return len(r.sink.recordedActions()) == 1
	}, time.Second, 2*time.Millisecond)

	a := r.sink.recordedActions()[0]
	assert.Equal(t, schemas.ActionFill, a.Kind)
	assert.Equal(t, "ada", a.Text)
	assert.False(t, a.Committing())
	assert.Empty(t, r.sink.performedOf(schemas.ActionFill))
}

func TestKeyDownOnlyRecognizedKeys(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#name")

	plain := &dom.Event{Type: dom.EventKeyDown, Target: r.element(t, "css=#name"), Key: "a"}
	r.doc.Dispatch(plain)
	assert.False(t, plain.Consumed(), "ordinary typing passes through")

	enter := &dom.Event{Type: dom.EventKeyDown, Target: r.element(t, "css=#name"), Key: "Enter"}
	r.doc.Dispatch(enter)
	assert.True(t, enter.Consumed())

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionPress)) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, "Enter", r.sink.performedOf(schemas.ActionPress)[0].Key)
}

func TestCommittingRoundTripIsSingleSlot(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#save")

	gate := make(chan struct{})
	r.sink.setGate(gate)

	r.doc.Dispatch(&dom.Event{Type: dom.EventClick, Target: r.element(t, "css=#save"), Button: schemas.ButtonLeft, ClickCount: 1})
	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionClick)) == 1
	}, time.Second, 2*time.Millisecond)

	// A second committing action mid-flight is dropped, not queued.
	r.doc.Dispatch(&dom.Event{Type: dom.EventKeyDown, Target: r.element(t, "css=#save"), Key: "Enter"})

	r.sink.setGate(nil)
	close(gate)
	time.Sleep(30 * time.Millisecond)

	assert.Len(t, r.sink.performedOf(schemas.ActionClick), 1)
	assert.Empty(t, r.sink.performedOf(schemas.ActionPress), "dropped action must not surface later")
}

func TestSyntheticEventsDuringPerformAreSuppressed(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#save")

	// The sink echoes every click back into the document, as an in-process
	// automation engine does.
	target := r.element(t, "css=#save")
	r.sink.mu.Lock()
	r.sink.onPerform = func(a schemas.Action) {
		if a.Kind == schemas.ActionClick {
			r.doc.Dispatch(&dom.Event{Type: dom.EventClick, Target: target, Button: schemas.ButtonLeft, ClickCount: 1})
		}
	}
	r.sink.mu.Unlock()

	r.doc.Dispatch(&dom.Event{Type: dom.EventClick, Target: r.element(t, "css=#save"), Button: schemas.ButtonLeft, ClickCount: 1})

	require.Eventually(t, func() bool {
		return len(r.sink.performedOf(schemas.ActionClick)) == 1
	}, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, r.sink.performedOf(schemas.ActionClick), 1, "echoed click must not re-record")
}

func TestPointerLeaveClearsImmediately(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()
	r.hover(t, "css=#save")
	require.NotEmpty(t, r.rec.Overlay().VisibleBoxes())

	// Child boundary crossings are ignored.
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerLeave, Target: r.element(t, "css=#save")})
	time.Sleep(30 * time.Millisecond)
	assert.NotEmpty(t, r.rec.Overlay().VisibleBoxes())

	// Leaving the document clears without waiting for the throttle window.
	r.doc.Dispatch(&dom.Event{Type: dom.EventPointerLeave})
	require.Eventually(t, func() bool {
		return len(r.rec.Overlay().VisibleBoxes()) == 0 && r.lastHighlight() == ""
	}, time.Second, 2*time.Millisecond)

	// Re-hovering the same element commits again after the reset.
	r.hover(t, "css=#save")
}

func TestAmbiguousLocatorHighlightsEveryMatch(t *testing.T) {
	r := newRig(t, pageHTML)
	r.rec.EnsureArmed()

	r.rec.Overlay().Update(context.Background(), "css=.card", r.element(t, "css=.card"))

	boxes := r.rec.Overlay().VisibleBoxes()
	require.Len(t, boxes, 3)
	assert.NotEqual(t, boxes[0].Color, boxes[1].Color, "primary match is visually distinct")
	assert.Equal(t, boxes[1].Color, boxes[2].Color)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := newRig(t, pageHTML)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.rec.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.doc.ListenerCount() == 6
	}, time.Second, 2*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
