// Package resolver implements the Lazy Ref Resolver (§4.4): the
// ladder that turns a versioned ref back into a live element handle
// across stale-DOM and re-render boundaries. Grounded on the reference
// repo's RefCache/RoleRef pattern (internal/browser/session.go),
// reshaped from a host-side cache into the spec's in-page map design
// so resolution survives independently of any host-side state.
package resolver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/handle"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/pagescript"
)

// RefPattern is the wire-stable ref format (§6).
var RefPattern = regexp.MustCompile(`^s\d+e\d+$`)

// Outcome classifies a resolution attempt.
type Outcome int

const (
	// Resolved means a live handle was produced.
	Resolved Outcome = iota
	// Stale means the node existed previously but is now detached and
	// re-resolution failed.
	Stale
	// NotFound means no node was ever recorded for this ref.
	NotFound
)

// Result is what Resolve returns.
type Result struct {
	Outcome    Outcome
	Element    handle.Element
	ReResolved bool
}

func iife(call string) string {
	return fmt.Sprintf("(function(){ %s; return (%s); })()", pagescript.Bundle, call)
}

// Resolve runs the four-rung resolution ladder from §4.4: fast path,
// selector re-resolution, role+name broad search, then stale/not-found.
func Resolve(ctx context.Context, session cdp.Session, cx cdp.ContextID, ref string) (Result, error) {
	if !RefPattern.MatchString(ref) {
		return Result{}, kinds.Wrap(kinds.Validation, fmt.Errorf("malformed ref %q", ref))
	}

	fast, err := evalStep(ctx, session, cx, "__cdpstep.resolveFast(arguments_[0])", ref)
	if err != nil {
		return Result{}, err
	}
	if found(fast) {
		el, err := fetchHandle(ctx, session, cx, ref)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: Resolved, Element: el, ReResolved: false}, nil
	}

	bySel, err := evalStep(ctx, session, cx, "__cdpstep.resolveBySelector(arguments_[0])", ref)
	if err != nil {
		return Result{}, err
	}
	if found(bySel) {
		el, err := fetchHandle(ctx, session, cx, ref)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: Resolved, Element: el, ReResolved: true}, nil
	}

	byRole, err := evalStep(ctx, session, cx, "__cdpstep.resolveByRoleSearch(arguments_[0])", ref)
	if err != nil {
		return Result{}, err
	}
	if found(byRole) {
		el, err := fetchHandle(ctx, session, cx, ref)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: Resolved, Element: el, ReResolved: true}, nil
	}

	existed, _ := fast["existed"].(bool)
	if existed {
		return Result{Outcome: Stale}, nil
	}
	return Result{Outcome: NotFound}, nil
}

func found(m map[string]any) bool {
	ok, _ := m["found"].(bool)
	return ok
}

func evalStep(ctx context.Context, session cdp.Session, cx cdp.ContextID, call, ref string) (map[string]any, error) {
	res, err := session.Eval(ctx, cx, iife(call), []any{ref}, true, false)
	if err != nil {
		return nil, err
	}
	if res.ExceptionText != "" {
		return nil, kinds.Wrap(kinds.EvalError, fmt.Errorf("%s", res.ExceptionText))
	}
	m, _ := res.Value.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// fetchHandle reads the (now-live) node recorded under ref as an
// object handle rather than a by-value result.
func fetchHandle(ctx context.Context, session cdp.Session, cx cdp.ContextID, ref string) (handle.Element, error) {
	res, err := session.Eval(ctx, cx, iife("(__cdpstep.ensureRefStore(), window.__ariaRefs[arguments_[0]])"), []any{ref}, false, false)
	if err != nil {
		return handle.Element{}, err
	}
	if res.ObjectID == "" {
		return handle.Element{}, kinds.Wrap(kinds.Stale, fmt.Errorf("ref %q resolved but object handle unavailable", ref))
	}
	return handle.Element{Context: cx, ObjectID: res.ObjectID}, nil
}
