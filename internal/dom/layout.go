// File: internal/dom/layout.go
package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Rect is an axis-aligned box in document or viewport coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Bottom returns the Y coordinate of the lower edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Right returns the X coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// defaultRowHeight is the height assigned to leaf elements that carry no
// explicit size. The recorder only needs stable, plausible geometry; it is
// not a faithful CSS renderer.
const defaultRowHeight = 24.0

// relayoutLocked recomputes the box of every rendered element with a single
// top-down block-flow pass: children stack vertically, a parent spans its
// children, leaves get a fixed row height. Explicit width/height attributes
// (as on sized inputs) override the computed extent. The overlay subtree and
// non-rendered containers are skipped entirely.
func (d *Document) relayoutLocked() {
	d.boxes = make(map[*html.Node]Rect)
	if d.root == nil {
		return
	}
	d.layoutNodeLocked(d.root, 0, 0, d.viewport.Width)
}

func (d *Document) layoutNodeLocked(n *html.Node, x, y, width float64) float64 {
	if skipLayout(n) {
		return 0
	}
	if w, ok := attrLength(n, "width"); ok {
		width = w
	}

	curY := y
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		curY += d.layoutNodeLocked(c, x, curY, width)
	}

	height := curY - y
	if height == 0 {
		height = defaultRowHeight
	}
	if h, ok := attrLength(n, "height"); ok {
		height = h
	}
	d.boxes[n] = Rect{X: x, Y: y, Width: width, Height: height}
	return height
}

func skipLayout(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "head", "script", "style", "meta", "link", "title", "option":
		return true
	}
	return hasAttrNode(n, OverlayAttr)
}

// attrLength parses a numeric width/height attribute, tolerating a px suffix.
func attrLength(n *html.Node, name string) (float64, bool) {
	for _, a := range n.Attr {
		if a.Key != name {
			continue
		}
		v := strings.TrimSuffix(strings.TrimSpace(a.Val), "px")
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
