// File: api/schemas/actions.go
package schemas

import "github.com/google/uuid"

// ActionKind identifies the variant of a recorded action.
type ActionKind string

const (
	ActionClick   ActionKind = "click"
	ActionCheck   ActionKind = "check"
	ActionUncheck ActionKind = "uncheck"
	ActionSelect  ActionKind = "select"
	ActionPress   ActionKind = "press"
	ActionFill    ActionKind = "fill"
	// ActionCommit carries no target. It marks the previously emitted
	// action as final.
	ActionCommit ActionKind = "commit"
)

// MouseButton identifies which button produced a click.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonMiddle MouseButton = "middle"
	ButtonRight  MouseButton = "right"
)

// Modifiers is the keyboard modifier bitset attached to clicks and key presses.
type Modifiers int

const (
	ModifierAlt   Modifiers = 1
	ModifierCtrl  Modifiers = 2
	ModifierMeta  Modifiers = 4
	ModifierShift Modifiers = 8
)

// Has reports whether every bit of m2 is set in m.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// Signal is a forward-compatible extension point. The recorder core never
// populates it.
type Signal struct {
	Name string `json:"name"`
}

// Action is an immutable record of a single user intent, expressed against a
// stable locator instead of raw coordinates. Construct one with the New*
// helpers and never mutate it afterwards.
type Action struct {
	ID      string     `json:"id"`
	Kind    ActionKind `json:"kind"`
	Locator string     `json:"locator,omitempty"`

	// Click fields.
	Button     MouseButton `json:"button,omitempty"`
	Modifiers  Modifiers   `json:"modifiers,omitempty"`
	ClickCount int         `json:"clickCount,omitempty"`

	// Press fields (Modifiers shared with click).
	Key string `json:"key,omitempty"`

	// Select fields: every currently selected option value, in document order.
	Values []string `json:"values,omitempty"`

	// Fill fields: the control's full current text value.
	Text string `json:"text,omitempty"`

	Signals []Signal `json:"signals"`
}

// Committing reports whether the action travels the committing round-trip
// channel. Fill is the only non-committing variant.
func (a Action) Committing() bool { return a.Kind != ActionFill }

// NewClick builds a click action. count is the event's repetition counter and
// is clamped to a minimum of 1.
func NewClick(locator string, button MouseButton, mods Modifiers, count int) Action {
	if count < 1 {
		count = 1
	}
	return Action{
		ID:         uuid.NewString(),
		Kind:       ActionClick,
		Locator:    locator,
		Button:     button,
		Modifiers:  mods,
		ClickCount: count,
		Signals:    []Signal{},
	}
}

// NewCheck builds a check or uncheck action from the control's resulting
// checked state.
func NewCheck(locator string, checked bool) Action {
	kind := ActionCheck
	if !checked {
		kind = ActionUncheck
	}
	return Action{ID: uuid.NewString(), Kind: kind, Locator: locator, Signals: []Signal{}}
}

// NewSelect builds a select action carrying the ordered selected option values.
func NewSelect(locator string, values []string) Action {
	vs := make([]string, len(values))
	copy(vs, values)
	return Action{ID: uuid.NewString(), Kind: ActionSelect, Locator: locator, Values: vs, Signals: []Signal{}}
}

// NewPress builds a press action for a recognized key.
func NewPress(locator, key string, mods Modifiers) Action {
	return Action{ID: uuid.NewString(), Kind: ActionPress, Locator: locator, Key: key, Modifiers: mods, Signals: []Signal{}}
}

// NewFill builds the non-committing fill action carrying the control's
// current value.
func NewFill(locator, text string) Action {
	return Action{ID: uuid.NewString(), Kind: ActionFill, Locator: locator, Text: text, Signals: []Signal{}}
}

// NewCommit builds the synthetic commit marker.
func NewCommit() Action {
	return Action{ID: uuid.NewString(), Kind: ActionCommit, Signals: []Signal{}}
}
