// File: internal/dom/element.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Element is a non-owning reference to a node of the host document. Wrappers
// are canonical per node, so two references to the same node compare equal.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node exposes the underlying parse-tree node for query engines.
func (e *Element) Node() *html.Node { return e.node }

// TagName returns the lowercase element name.
func (e *Element) TagName() string { return strings.ToLower(e.node.Data) }

// Attr returns an attribute value, "" when absent.
func (e *Element) Attr(name string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.SelectAttr(e.node, name)
}

// HasAttr reports attribute presence, distinguishing "" from absent.
func (e *Element) HasAttr(name string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for _, a := range e.node.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.setAttrLocked(name, value)
}

func (e *Element) setAttrLocked(name, value string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr drops an attribute if present.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr = append(e.node.Attr[:i:i], e.node.Attr[i+1:]...)
			return
		}
	}
}

// Attached reports whether the element is still reachable from the current
// root. A stale reference after a root replacement is detached.
func (e *Element) Attached() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// -- Form-control semantics --

// IsSelect reports whether the element is a <select> control.
func (e *Element) IsSelect() bool { return e.TagName() == "select" }

// IsCheckbox reports whether the element is a checkbox or radio input.
func (e *Element) IsCheckbox() bool {
	if e.TagName() != "input" {
		return false
	}
	switch strings.ToLower(e.Attr("type")) {
	case "checkbox", "radio":
		return true
	}
	return false
}

// IsEditable reports whether the element takes free text entry: a text-like
// input, a textarea, or a contenteditable host.
func (e *Element) IsEditable() bool {
	switch e.TagName() {
	case "input":
		switch strings.ToLower(e.Attr("type")) {
		case "hidden", "submit", "button", "reset", "image", "checkbox", "radio":
			return false
		}
		return true
	case "textarea":
		return true
	}
	if e.HasAttr("contenteditable") {
		v := strings.TrimSpace(strings.ToLower(e.Attr("contenteditable")))
		return v == "true" || v == ""
	}
	return false
}

// Checked reports the checkbox's current state.
func (e *Element) Checked() bool { return e.HasAttr("checked") }

// SetChecked flips the checkbox state.
func (e *Element) SetChecked(checked bool) {
	if checked {
		e.SetAttr("checked", "")
		return
	}
	e.RemoveAttr("checked")
}

// Value returns the control's current text value.
func (e *Element) Value() string { return e.Attr("value") }

// SetValue replaces the control's text value.
func (e *Element) SetValue(v string) { e.SetAttr("value", v) }

// SelectedValues returns every selected option value of a <select>, in
// document order. An <option> without a value attribute contributes its text.
func (e *Element) SelectedValues() []string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var values []string
	for _, opt := range htmlquery.Find(e.node, ".//option") {
		if !hasAttrNode(opt, "selected") {
			continue
		}
		values = append(values, optionValue(opt))
	}
	return values
}

// SetSelectedValues marks exactly the given option values as selected.
func (e *Element) SetSelectedValues(values []string) {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, opt := range htmlquery.Find(e.node, ".//option") {
		oe := e.doc.elementForLocked(opt)
		if want[optionValue(opt)] {
			oe.setAttrLocked("selected", "")
			continue
		}
		removeAttrNode(opt, "selected")
	}
}

func optionValue(opt *html.Node) string {
	if v := htmlquery.SelectAttr(opt, "value"); v != "" {
		return v
	}
	return strings.TrimSpace(htmlquery.InnerText(opt))
}

func hasAttrNode(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func removeAttrNode(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr = append(n.Attr[:i:i], n.Attr[i+1:]...)
			return
		}
	}
}

// InOverlay reports whether the element sits inside the recorder's overlay
// layer.
func (e *Element) InOverlay() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return nodeInOverlay(e.node)
}

func nodeInOverlay(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hasAttrNode(n, OverlayAttr) {
			return true
		}
	}
	return false
}
