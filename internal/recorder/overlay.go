// File: internal/recorder/overlay.go
package recorder

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/internal/dom"
	"github.com/darkfathom/scribe-cli/internal/locator"
)

const (
	// First match box color; the remaining matches share the secondary
	// color so an ambiguous locator is visually obvious.
	overlayPrimaryColor   = "#f6b26b"
	overlaySecondaryColor = "#6fa8dc"

	tooltipHeight    = 22.0
	tooltipPadding   = 8.0
	tooltipCharWidth = 7.0
	tooltipGap       = 4.0
)

// BoxInfo is one rendered highlight box.
type BoxInfo struct {
	Rect  dom.Rect
	Color string
}

// Overlay owns the transparent full-viewport layer: a pool of reusable
// highlight box nodes plus a single tooltip node, all inside an isolated
// subtree that locator queries and hit testing skip.
type Overlay struct {
	doc *dom.Document
	res locator.Resolver
	log *zap.Logger

	mu      sync.Mutex
	layer   *dom.Element
	tooltip *dom.Element
	pool    []*dom.Element

	// Mirror of the drawn state for deterministic inspection.
	visible []BoxInfo
	tipRect dom.Rect
	tipOn   bool

	// Previous frame's tooltip geometry, reused as the placeholder write.
	lastTip dom.Rect
}

func newOverlay(doc *dom.Document, res locator.Resolver, log *zap.Logger) *Overlay {
	return &Overlay{doc: doc, res: res, log: log.Named("overlay")}
}

// Attach builds a fresh layer on the current root. The previous layer, if
// any, lived on a root that no longer exists; its nodes are simply dropped.
func (o *Overlay) Attach() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.layer != nil && o.layer.Attached() {
		o.doc.RemoveNode(o.layer)
	}
	o.layer = o.doc.CreateElement("x-scribe-glass", map[string]string{
		dom.OverlayAttr: "",
		"style":         "position:fixed;inset:0;pointer-events:none",
	})
	o.doc.AppendChild(o.doc.Root(), o.layer)

	o.tooltip = o.doc.CreateElement("x-scribe-tooltip", map[string]string{"hidden": ""})
	o.doc.AppendChild(o.layer, o.tooltip)

	o.pool = nil
	o.visible = nil
	o.tipOn = false
}

// Update redraws the overlay for a locator: one box per matching element,
// the tooltip anchored to the primary (originally hovered) element. Render
// order is fixed: placeholder writes, then all geometry reads in one batch,
// then final writes.
func (o *Overlay) Update(ctx context.Context, loc string, primary *dom.Element) {
	matches, err := o.res.Query(ctx, loc)
	if err != nil {
		o.log.Warn("locator query failed", zap.String("locator", loc), zap.Error(err))
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.layer == nil || !o.layer.Attached() {
		return
	}

	// Write: tooltip label plus last frame's geometry as a placeholder.
	o.tooltip.SetAttr("label", loc)
	o.setRect(o.tooltip, o.lastTip)

	// Read: every needed box in one batch.
	viewport := o.doc.Viewport()
	var primaryBox *dom.Rect
	if primary != nil {
		if b, ok := o.doc.BoundingBox(primary); ok {
			primaryBox = &b
		}
	}
	boxes := make([]dom.Rect, 0, len(matches))
	for _, m := range matches {
		if b, ok := o.doc.BoundingBox(m); ok {
			boxes = append(boxes, b)
		}
	}
	tipW := tooltipPadding*2 + float64(len(loc))*tooltipCharWidth
	tipH := tooltipHeight

	// Write: final positions.
	if primaryBox == nil {
		o.tooltip.SetAttr("hidden", "")
		o.tipOn = false
	} else {
		x := primaryBox.X
		if x+tipW > viewport.Width {
			x = viewport.Width - tipW
		}
		if x < 0 {
			x = 0
		}
		y := primaryBox.Bottom() + tooltipGap
		if y+tipH > viewport.Height {
			// Would overflow the viewport bottom: anchor above instead.
			y = primaryBox.Y - tooltipGap - tipH
		}
		r := dom.Rect{X: x, Y: y, Width: tipW, Height: tipH}
		o.setRect(o.tooltip, r)
		o.tooltip.RemoveAttr("hidden")
		o.lastTip = r
		o.tipRect = r
		o.tipOn = true
	}

	o.visible = o.visible[:0]
	for i, b := range boxes {
		el := o.poolBoxLocked(i)
		color := overlaySecondaryColor
		if i == 0 {
			color = overlayPrimaryColor
		}
		el.SetAttr("color", color)
		o.setRect(el, b)
		el.RemoveAttr("hidden")
		o.visible = append(o.visible, BoxInfo{Rect: b, Color: color})
	}
	// Hide the surplus from the previous frame; the nodes stay pooled.
	for i := len(boxes); i < len(o.pool); i++ {
		o.pool[i].SetAttr("hidden", "")
	}
}

// Clear hides every highlight box and the tooltip.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, el := range o.pool {
		el.SetAttr("hidden", "")
	}
	if o.tooltip != nil {
		o.tooltip.SetAttr("hidden", "")
	}
	o.visible = nil
	o.tipOn = false
}

// VisibleBoxes returns the currently drawn highlight boxes in draw order.
func (o *Overlay) VisibleBoxes() []BoxInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]BoxInfo, len(o.visible))
	copy(out, o.visible)
	return out
}

// TooltipRect returns the tooltip geometry and whether it is shown.
func (o *Overlay) TooltipRect() (dom.Rect, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tipRect, o.tipOn
}

func (o *Overlay) poolBoxLocked(i int) *dom.Element {
	for len(o.pool) <= i {
		box := o.doc.CreateElement("x-scribe-box", map[string]string{"hidden": ""})
		o.doc.AppendChild(o.layer, box)
		o.pool = append(o.pool, box)
	}
	return o.pool[i]
}

func (o *Overlay) setRect(el *dom.Element, r dom.Rect) {
	el.SetAttr("x", formatPx(r.X))
	el.SetAttr("y", formatPx(r.Y))
	el.SetAttr("w", formatPx(r.Width))
	el.SetAttr("h", formatPx(r.Height))
}

func formatPx(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
