// File: internal/dom/document.go
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// OverlayAttr marks the recorder's overlay subtree. Nodes underneath it are
// invisible to layout, hit testing, and locator queries.
const OverlayAttr = "data-scribe-overlay"

type listenerReg struct {
	id ListenerID
	fn Listener
}

// Document is an in-process host document: a parsed HTML tree plus the
// expando storage, capture-listener registry, and box geometry the recorder
// instruments. The document owns element lifetimes; references handed out may
// become detached at any time and callers must tolerate that.
type Document struct {
	log *zap.Logger

	mu       sync.RWMutex
	tree     *html.Node // DocumentNode
	root     *html.Node // <html> element
	viewport Rect
	scrollY  float64

	nextListener ListenerID
	listeners    map[EventType][]listenerReg
	expandos     map[*html.Node]map[string]string
	elements     map[*html.Node]*Element
	boxes        map[*html.Node]Rect
}

// Parse builds a document from HTML markup and lays it out against the given
// viewport.
func Parse(r io.Reader, viewport Rect, log *zap.Logger) (*Document, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tree, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	d := &Document{
		log:      log.Named("dom"),
		viewport: viewport,
	}
	d.install(tree)
	return d, nil
}

// install resets all per-root state around a (new) tree. Caller must not hold
// the lock.
func (d *Document) install(tree *html.Node) {
	root := findRootElement(tree)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = tree
	d.root = root
	d.listeners = make(map[EventType][]listenerReg)
	d.expandos = make(map[*html.Node]map[string]string)
	d.elements = make(map[*html.Node]*Element)
	d.boxes = make(map[*html.Node]Rect)
	d.scrollY = 0
	d.relayoutLocked()
}

func findRootElement(tree *html.Node) *html.Node {
	for n := tree.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return tree
}

// ReplaceRoot swaps in an entirely new tree, as a single-page navigation
// would. Listeners, expandos, and geometry for the old tree are dropped.
func (d *Document) ReplaceRoot(r io.Reader) error {
	tree, err := htmlquery.Parse(r)
	if err != nil {
		return fmt.Errorf("parse replacement document: %w", err)
	}
	d.install(tree)
	d.log.Debug("document root replaced")
	return nil
}

// Root returns the current document root element.
func (d *Document) Root() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elementForLocked(d.root)
}

// Viewport returns the viewport rectangle (origin is always 0,0).
func (d *Document) Viewport() Rect {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewport
}

// ScrollY returns the current vertical scroll offset.
func (d *Document) ScrollY() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scrollY
}

// ScrollTo sets the vertical scroll offset, clamped at zero.
func (d *Document) ScrollTo(y float64) {
	if y < 0 {
		y = 0
	}
	d.mu.Lock()
	d.scrollY = y
	d.mu.Unlock()
}

// elementForLocked returns the canonical *Element wrapper for a node, so
// identity comparisons hold across calls.
func (d *Document) elementForLocked(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

// ElementFor returns the canonical wrapper for an arbitrary node of this
// document's tree.
func (d *Document) ElementFor(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elementForLocked(n)
}

// -- Expandos --

// SetExpando attaches a private marker property to an element. Expandos do
// not survive root replacement.
func (d *Document) SetExpando(el *Element, key, value string) {
	if el == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.expandos[el.node]
	if m == nil {
		m = make(map[string]string)
		d.expandos[el.node] = m
	}
	m[key] = value
}

// Expando reads a marker property, returning "" when absent.
func (d *Document) Expando(el *Element, key string) string {
	if el == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.expandos[el.node][key]
}

// -- Listeners --

// AddListener installs a capture-phase listener and returns its handle.
func (d *Document) AddListener(t EventType, fn Listener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextListener++
	id := d.nextListener
	d.listeners[t] = append(d.listeners[t], listenerReg{id: id, fn: fn})
	return id
}

// RemoveListener uninstalls a listener by handle. Removing a handle that was
// already dropped (for example by a root replacement) is a no-op.
func (d *Document) RemoveListener(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t, regs := range d.listeners {
		for i, reg := range regs {
			if reg.id == id {
				d.listeners[t] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount reports how many listeners are currently installed.
func (d *Document) ListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, regs := range d.listeners {
		n += len(regs)
	}
	return n
}

// Dispatch delivers an event to capture listeners and, when no listener
// consumed it, applies the document's default behavior. Listeners run without
// the document lock held and may dispatch further events.
func (d *Document) Dispatch(ev *Event) {
	d.mu.RLock()
	regs := make([]listenerReg, len(d.listeners[ev.Type]))
	copy(regs, d.listeners[ev.Type])
	d.mu.RUnlock()

	for _, reg := range regs {
		reg.fn(ev)
		if ev.consumed {
			return
		}
	}
	d.applyDefault(ev)
}

// applyDefault implements the host page's built-in reaction to an event.
func (d *Document) applyDefault(ev *Event) {
	if ev.Type != EventClick || ev.Target == nil {
		return
	}
	if !ev.Target.IsCheckbox() {
		return
	}
	if strings.EqualFold(ev.Target.Attr("type"), "radio") {
		// Radios only ever turn on; clicking a checked radio is a no-op.
		if ev.Target.Checked() {
			return
		}
		ev.Target.SetChecked(true)
	} else {
		ev.Target.SetChecked(!ev.Target.Checked())
	}
	d.Dispatch(&Event{Type: EventInput, Target: ev.Target, X: ev.X, Y: ev.Y})
}

// -- Hit testing and geometry --

// ElementAt returns the deepest element whose box contains the viewport
// point, skipping the overlay subtree. Returns nil when the point misses
// every box.
func (d *Document) ElementAt(x, y float64) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.hitLocked(d.root, x, y+d.scrollY)
	if n == nil {
		return nil
	}
	return d.elementForLocked(n)
}

func (d *Document) hitLocked(n *html.Node, x, y float64) *html.Node {
	box, ok := d.boxes[n]
	if !ok || !box.Contains(x, y) {
		return nil
	}
	// Later siblings paint on top; prefer them.
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if hit := d.hitLocked(c, x, y); hit != nil {
			return hit
		}
	}
	return n
}

// BoundingBox returns the element's box in viewport coordinates. ok is false
// when the element is detached or not rendered.
func (d *Document) BoundingBox(el *Element) (Rect, bool) {
	if el == nil {
		return Rect{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	box, ok := d.boxes[el.node]
	if !ok {
		return Rect{}, false
	}
	box.Y -= d.scrollY
	return box, true
}

// -- Node construction helpers --

// CreateElement builds a detached element node owned by this document.
func (d *Document) CreateElement(tag string, attrs map[string]string) *Element {
	n := &html.Node{
		Type: html.ElementNode,
		Data: strings.ToLower(tag),
	}
	for k, v := range attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: v})
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elementForLocked(n)
}

// AppendChild attaches child under parent and recomputes geometry.
func (d *Document) AppendChild(parent, child *Element) {
	if parent == nil || child == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	parent.node.AppendChild(child.node)
	d.relayoutLocked()
}

// RemoveNode detaches an element from its parent. Geometry is recomputed.
func (d *Document) RemoveNode(el *Element) {
	if el == nil || el.node.Parent == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	el.node.Parent.RemoveChild(el.node)
	d.relayoutLocked()
}

// Relayout recomputes box geometry for the whole tree.
func (d *Document) Relayout() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relayoutLocked()
}
