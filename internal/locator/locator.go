// File: internal/locator/locator.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/internal/dom"
)

// A locator is a prefixed string expression that, evaluated against the
// document, yields the set of elements it targets:
//
//	css=#login            (evaluated with goquery)
//	xpath=/html[1]/body[1]/form[1]/input[2]
//
// Resolution prefers short css anchors and falls back to a positional XPath
// that is always unique.

// ErrDetached is returned when a locator is requested for an element that is
// no longer part of the document.
var ErrDetached = errors.New("locator: element detached from document")

// Resolver computes locators for elements and evaluates locators back into
// element sets. Both directions may be slow; they honor context cancellation.
type Resolver interface {
	Resolve(ctx context.Context, el *dom.Element) (string, error)
	Query(ctx context.Context, locator string) ([]*dom.Element, error)
}

// DocumentResolver resolves against a live in-process document. Overlay
// nodes are never resolvable and never returned from queries.
type DocumentResolver struct {
	doc *dom.Document
	log *zap.Logger
}

// NewResolver builds a resolver bound to one document.
func NewResolver(doc *dom.Document, log *zap.Logger) *DocumentResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentResolver{doc: doc, log: log.Named("locator")}
}

var simpleIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Resolve computes a unique, stable locator for the element.
func (r *DocumentResolver) Resolve(ctx context.Context, el *dom.Element) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if el == nil || !el.Attached() {
		return "", ErrDetached
	}
	if el.InOverlay() {
		return "", fmt.Errorf("locator: overlay elements are not addressable")
	}

	// Short anchors first: a unique id, then a unique test id.
	if id := el.Attr("id"); id != "" && simpleIdent.MatchString(id) {
		loc := "css=#" + id
		if r.matchesExactly(loc, el) {
			return loc, nil
		}
	}
	if tid := el.Attr("data-testid"); tid != "" {
		loc := fmt.Sprintf(`css=[data-testid=%q]`, tid)
		if r.matchesExactly(loc, el) {
			return loc, nil
		}
	}

	// The positional walk reads raw parent and sibling pointers, so it runs
	// under the document lock like every other traversal.
	var path string
	r.doc.ReadLocked(func() {
		path = positionalXPath(el.Node())
	})
	return "xpath=" + path, nil
}

// matchesExactly reports whether the locator resolves to exactly this element.
func (r *DocumentResolver) matchesExactly(loc string, el *dom.Element) bool {
	matches, err := r.Query(context.Background(), loc)
	if err != nil {
		return false
	}
	return len(matches) == 1 && matches[0] == el
}

// Query evaluates a locator and returns all matching elements in document
// order. An empty result is not an error.
func (r *DocumentResolver) Query(ctx context.Context, locator string) ([]*dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expr, engine, err := splitLocator(locator)
	if err != nil {
		return nil, err
	}

	// Engine evaluation holds the document lock; see dom.QueryCSS.
	switch engine {
	case "css":
		return r.doc.QueryCSS(expr), nil
	default:
		out, qerr := r.doc.QueryXPath(expr)
		if qerr != nil {
			return nil, fmt.Errorf("locator: bad xpath %q: %w", expr, qerr)
		}
		return out, nil
	}
}

func splitLocator(locator string) (expr, engine string, err error) {
	switch {
	case strings.HasPrefix(locator, "css="):
		return strings.TrimPrefix(locator, "css="), "css", nil
	case strings.HasPrefix(locator, "xpath="):
		return strings.TrimPrefix(locator, "xpath="), "xpath", nil
	}
	return "", "", fmt.Errorf("locator: unrecognized expression %q", locator)
}
