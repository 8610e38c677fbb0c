// Package handle defines the element handle type shared by the
// locator, actionability checker, and resolver: an opaque reference to
// a DOM node in one execution context, owned by whichever operation
// resolved it (§3 Element Handle). Grounded on the reference repo's
// agent/tools/browser.go refMap design, reshaped per the redesign
// notes into a concrete owning type rather than a bare object id.
package handle

import (
	"context"

	"github.com/cdpstep/cdpstep/internal/cdp"
)

// Element is a live reference to a DOM node. It is never copied across
// execution contexts and must be released exactly once: by the
// operation that created it, on every exit path (success, error, or
// cancellation).
type Element struct {
	Context  cdp.ContextID
	ObjectID cdp.ObjectID
	// Selector is the locator expression that produced this handle, if
	// any. It is informational: neither the resolver nor the
	// actionability checker reads it.
	Selector string
}

// Release frees the underlying remote object. Safe to call on a zero
// Element (no-op). Callers should always defer Release immediately
// after a handle is obtained, per the scoped-resource cleanup pattern.
func (e Element) Release(ctx context.Context, session cdp.Session) error {
	if e.ObjectID == "" {
		return nil
	}
	return session.ReleaseObject(ctx, e.ObjectID)
}

// Valid reports whether e carries a live object id.
func (e Element) Valid() bool {
	return e.ObjectID != ""
}
