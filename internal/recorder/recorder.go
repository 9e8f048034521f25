// File: internal/recorder/recorder.go
//
// The interaction state machine. It consumes captured events, keeps hover
// state, decides action versus pass-through, asks the locator resolver for
// stable locators, emits actions into the sink, and tells the overlay what
// to draw. Three asynchronous timelines meet here: synchronous raw events,
// the throttled locator-resolution pipeline, and the committing action
// round-trip. Staleness checks and the action phase keep them from producing
// duplicated or out-of-order actions.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/darkfathom/scribe-cli/api/schemas"
	"github.com/darkfathom/scribe-cli/internal/dom"
	"github.com/darkfathom/scribe-cli/internal/locator"
)

// instrumentedMarker is the expando the re-arm check looks for on the
// document root. A replaced root loses it, which triggers reinstallation.
const instrumentedMarker = "__scribe_recorder__"

// Sink receives the actions the recorder emits. Perform is the committing
// round-trip executed against the automation engine; Record is the
// fire-and-forget channel for non-committing actions.
type Sink interface {
	Perform(ctx context.Context, action schemas.Action) error
	Record(action schemas.Action)
}

// Options tunes the recorder's timing. Zero values pick defaults.
type Options struct {
	// ThrottleWindow is the coalescing delay for hover-driven locator
	// resolution.
	ThrottleWindow time.Duration
	// RearmInterval is the poll period of the listener self-heal check.
	RearmInterval time.Duration
	// ScrollRedrawPerSecond caps scroll-driven overlay refreshes.
	ScrollRedrawPerSecond float64
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ThrottleWindow <= 0 {
		out.ThrottleWindow = 50 * time.Millisecond
	}
	if out.RearmInterval <= 0 {
		out.RearmInterval = 100 * time.Millisecond
	}
	if out.ScrollRedrawPerSecond <= 0 {
		out.ScrollRedrawPerSecond = 30
	}
	return out
}

// Recorder translates raw interaction events into replayable actions and
// keeps the overlay in sync with the hovered locator.
type Recorder struct {
	log       *zap.Logger
	doc       *dom.Document
	res       locator.Resolver
	sink      Sink
	throttle  *Throttler
	overlay   *Overlay
	phase     actionPhase
	scrollLim *rate.Limiter
	sessionID string
	opts      Options

	mu             sync.Mutex
	hoveredElement *dom.Element
	hoveredLocator string
	hoverEpoch     uint64
	listenerIDs    []dom.ListenerID

	wg sync.WaitGroup

	// OnReady fires once listeners are (re)installed. OnHighlight fires
	// with the current locator ("" for none) after every overlay refresh.
	// Set both before Run or EnsureArmed; they are invoked from recorder
	// goroutines.
	OnReady     func()
	OnHighlight func(locator string)
}

// New wires a recorder to a document, resolver, and sink.
func New(doc *dom.Document, res locator.Resolver, sink Sink, opts Options, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	o := opts.withDefaults()
	r := &Recorder{
		log:       log.Named("recorder"),
		doc:       doc,
		res:       res,
		sink:      sink,
		throttle:  NewThrottler(o.ThrottleWindow),
		scrollLim: rate.NewLimiter(rate.Limit(o.ScrollRedrawPerSecond), 1),
		sessionID: uuid.NewString(),
		opts:      o,
	}
	r.overlay = newOverlay(doc, res, r.log)
	return r
}

// SessionID identifies this recorder instance in logs and sinks.
func (r *Recorder) SessionID() string { return r.sessionID }

// Overlay exposes the overlay for inspection.
func (r *Recorder) Overlay() *Overlay { return r.overlay }

// Run arms the recorder and keeps it armed until ctx is cancelled, polling
// for a replaced root at the configured interval. Always returns nil after a
// clean shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	r.EnsureArmed()
	ticker := time.NewTicker(r.opts.RearmInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.EnsureArmed()
		}
	}
}

// Close stops the throttler, waiting for any commit already fired to finish
// scheduling its round trip, then waits for in-flight action goroutines.
// After Close returns the sink is never touched again.
func (r *Recorder) Close() {
	r.throttle.Stop()
	r.wg.Wait()
}

// EnsureArmed installs capture listeners and the overlay layer if the
// current root is not yet instrumented. Idempotent: with the marker present
// it performs zero listener churn. Safe to run concurrently with an
// in-flight action.
func (r *Recorder) EnsureArmed() {
	root := r.doc.Root()
	if r.doc.Expando(root, instrumentedMarker) != "" {
		return
	}

	r.mu.Lock()
	old := r.listenerIDs
	r.listenerIDs = nil
	// Hover state refers to the previous root; start clean.
	r.hoveredElement = nil
	r.hoveredLocator = ""
	r.hoverEpoch++
	r.mu.Unlock()

	for _, id := range old {
		r.doc.RemoveListener(id)
	}

	ids := []dom.ListenerID{
		r.doc.AddListener(dom.EventClick, r.onClick),
		r.doc.AddListener(dom.EventInput, r.onInput),
		r.doc.AddListener(dom.EventKeyDown, r.onKeyDown),
		r.doc.AddListener(dom.EventPointerMove, r.onPointerMove),
		r.doc.AddListener(dom.EventPointerLeave, r.onPointerLeave),
		r.doc.AddListener(dom.EventScroll, r.onScroll),
	}
	r.mu.Lock()
	r.listenerIDs = ids
	r.mu.Unlock()

	r.doc.SetExpando(root, instrumentedMarker, "1")
	r.overlay.Attach()
	r.log.Debug("capture listeners installed",
		zap.String("session", r.sessionID), zap.Int("listeners", len(ids)))
	if r.OnReady != nil {
		r.OnReady()
	}
}

// -- Event classification --

func (r *Recorder) onClick(ev *dom.Event) {
	if r.phase.performing() {
		return
	}
	t := ev.Target
	if t == nil {
		return
	}
	// Select changes arrive through the input path; checkbox clicks are
	// recorded from the resulting checked state, also via input.
	if t.IsSelect() || t.IsCheckbox() {
		return
	}
	// Consume before anything else so the host page never sees the click.
	ev.Consume()
	loc := r.currentLocator()
	if loc == "" {
		// No hover-resolved locator yet: the click is swallowed with no
		// action emitted (require-hover policy).
		r.log.Debug("click dropped, no hovered locator")
		return
	}
	r.perform(schemas.NewClick(loc, ev.Button, ev.Modifiers, ev.ClickCount))
}

func (r *Recorder) onInput(ev *dom.Event) {
	if r.phase.performing() {
		return
	}
	t := ev.Target
	if t == nil {
		return
	}
	switch {
	case t.IsSelect():
		ev.Consume()
		loc := r.currentLocator()
		if loc == "" {
			return
		}
		r.perform(schemas.NewSelect(loc, t.SelectedValues()))
	case t.IsCheckbox():
		ev.Consume()
		loc := r.currentLocator()
		if loc == "" {
			return
		}
		r.perform(schemas.NewCheck(loc, t.Checked()))
	case t.IsEditable():
		// Not consumed: the host page must still see typing. Text entry is
		// continuously re-recorded through the cheap record path.
		loc := r.currentLocator()
		if loc == "" {
			return
		}
		r.record(schemas.NewFill(loc, t.Value()))
	}
}

func (r *Recorder) onKeyDown(ev *dom.Event) {
	if r.phase.performing() {
		return
	}
	switch ev.Key {
	case "Tab", "Enter", "Escape":
	default:
		return
	}
	ev.Consume()
	loc := r.currentLocator()
	if loc == "" {
		return
	}
	r.perform(schemas.NewPress(loc, ev.Key, ev.Modifiers))
}

// -- Hover tracking --

func (r *Recorder) onPointerMove(ev *dom.Event) {
	if r.phase.performing() {
		return
	}
	r.mu.Lock()
	if ev.Target == r.hoveredElement {
		r.mu.Unlock()
		return
	}
	r.hoveredElement = ev.Target
	r.hoverEpoch++
	r.mu.Unlock()
	r.scheduleHoverCommit(false)
}

func (r *Recorder) onPointerLeave(ev *dom.Event) {
	if r.phase.performing() {
		return
	}
	// Only the document boundary itself; child boundaries never get here.
	if ev.Target != nil {
		return
	}
	r.mu.Lock()
	r.hoveredElement = nil
	r.hoveredLocator = ""
	r.hoverEpoch++
	r.mu.Unlock()
	r.scheduleHoverCommit(true)
}

func (r *Recorder) onScroll(ev *dom.Event) {
	if r.phase.performing() {
		return
	}
	if !r.scrollLim.Allow() {
		return
	}
	r.mu.Lock()
	loc, el := r.hoveredLocator, r.hoveredElement
	r.mu.Unlock()
	if loc == "" {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.overlay.Update(context.Background(), loc, el)
		r.signalHighlight(loc)
	}()
}

// scheduleHoverCommit snapshots the hover identity now; the unit of work
// validates the snapshot against current state when its resolution arrives.
func (r *Recorder) scheduleHoverCommit(immediate bool) {
	r.mu.Lock()
	el, epoch := r.hoveredElement, r.hoverEpoch
	r.mu.Unlock()
	work := func() { r.commitHover(el, epoch) }
	if immediate {
		r.throttle.ScheduleImmediate(work)
		return
	}
	r.throttle.Schedule(work)
}

// commitHover is the coalesced unit of work: resolve the captured element's
// locator, discard the result if it is stale or a no-op, otherwise emit a
// commit action and redraw the highlight.
func (r *Recorder) commitHover(el *dom.Element, epoch uint64) {
	if el == nil {
		r.overlay.Clear()
		r.signalHighlight("")
		return
	}

	loc, err := r.res.Resolve(context.Background(), el)
	if err != nil {
		r.log.Warn("locator resolution failed", zap.Error(err))
		return
	}

	r.mu.Lock()
	if r.hoverEpoch != epoch || loc == r.hoveredLocator {
		// Superseded by a newer unit of work, or already current.
		r.mu.Unlock()
		return
	}
	r.hoveredLocator = loc
	r.mu.Unlock()

	r.perform(schemas.NewCommit())
	r.overlay.Update(context.Background(), loc, el)
	r.signalHighlight(loc)
}

func (r *Recorder) currentLocator() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hoveredLocator
}

// -- Action dispatch --

// perform starts the committing round-trip. The phase transition happens
// synchronously so every later event sees it; the round-trip itself runs
// asynchronously and the phase is cleared when it settles, success or
// failure. A second committing action attempted mid-flight is dropped, not
// buffered.
func (r *Recorder) perform(a schemas.Action) {
	if !r.phase.begin() {
		r.log.Debug("action dropped, round-trip outstanding", zap.String("kind", string(a.Kind)))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.phase.end()
		if err := r.sink.Perform(context.Background(), a); err != nil {
			r.log.Warn("committing action failed",
				zap.String("kind", string(a.Kind)), zap.String("locator", a.Locator), zap.Error(err))
		}
	}()
}

func (r *Recorder) record(a schemas.Action) {
	r.sink.Record(a)
}

func (r *Recorder) signalHighlight(loc string) {
	if r.OnHighlight != nil {
		r.OnHighlight(loc)
	}
}
