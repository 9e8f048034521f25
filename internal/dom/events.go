// File: internal/dom/events.go
package dom

import "github.com/darkfathom/scribe-cli/api/schemas"

// EventType names a raw interaction event delivered to capture listeners.
type EventType string

const (
	EventClick        EventType = "click"
	EventInput        EventType = "input"
	EventKeyDown      EventType = "keydown"
	EventPointerMove  EventType = "pointermove"
	EventPointerLeave EventType = "pointerleave"
	EventScroll       EventType = "scroll"
)

// Event is a single raw interaction event. Target is nil when the event is
// addressed to the document itself (pointer leaving the document boundary).
type Event struct {
	Type   EventType
	Target *Element

	// Pointer position in viewport coordinates.
	X, Y float64

	Button     schemas.MouseButton
	Modifiers  schemas.Modifiers
	ClickCount int

	// Key name for keydown events.
	Key string

	consumed bool
}

// Consume prevents the default behavior and stops further propagation. The
// host page never observes a consumed event.
func (e *Event) Consume() { e.consumed = true }

// Consumed reports whether a capture listener consumed the event.
func (e *Event) Consumed() bool { return e.consumed }

// Listener is a capture-phase event listener.
type Listener func(*Event)

// ListenerID identifies an installed listener so it can be removed.
type ListenerID int
