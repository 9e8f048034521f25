// File: internal/dom/query.go
package dom

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// The query engines walk the raw parse tree, so evaluation must hold the
// document lock: AppendChild, RemoveNode, and attribute writes mutate the
// same nodes from other goroutines (overlay pool, driver pump).

// QueryCSS evaluates a CSS selector and returns matching elements in
// document order, excluding the overlay subtree.
func (d *Document) QueryCSS(expr string) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	gdoc := goquery.NewDocumentFromNode(d.tree)
	return d.collectLocked(gdoc.Find(expr).Nodes)
}

// QueryXPath evaluates an XPath expression the same way.
func (d *Document) QueryXPath(expr string) ([]*Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, err := htmlquery.QueryAll(d.tree, expr)
	if err != nil {
		return nil, err
	}
	return d.collectLocked(nodes), nil
}

func (d *Document) collectLocked(nodes []*html.Node) []*Element {
	var out []*Element
	for _, n := range nodes {
		if n.Type != html.ElementNode || nodeInOverlay(n) {
			continue
		}
		out = append(out, d.elementForLocked(n))
	}
	return out
}

// ReadLocked runs fn while holding the tree lock for reading. For callers
// that traverse raw nodes directly; fn must not call back into locking
// Document or Element methods.
func (d *Document) ReadLocked(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn()
}
