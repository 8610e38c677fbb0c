// Package actionable implements the Actionability Checker (§4.2): the
// auto-wait predicate engine that blocks interactions until an element
// is a legitimate target. Grounded on the vibium clicker's
// actionability.go (per-action check sets, retryable vs. immediate
// failure split) and reshaped into the engine's handle.Element /
// cdp.Session vocabulary.
package actionable

import (
	"context"
	"fmt"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/handle"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/pagescript"
)

// Predicate names, used both as the required-set vocabulary and as the
// "received" label on failure.
type Predicate string

const (
	Attached Predicate = "attached"
	Visible  Predicate = "visible"
	Enabled  Predicate = "enabled"
	Editable Predicate = "editable"
	Stable   Predicate = "stable"
	Hittable Predicate = "hittable"
)

// ActionKind is the interaction the checker is gating.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionHover  ActionKind = "hover"
	ActionFill   ActionKind = "fill"
	ActionType   ActionKind = "type"
	ActionSelect ActionKind = "select"
)

// RequiredPredicates is the §4.2 table of per-action predicate sets.
var RequiredPredicates = map[ActionKind][]Predicate{
	ActionClick:  {Attached, Visible, Stable, Hittable},
	ActionHover:  {Attached, Visible, Stable, Hittable},
	ActionFill:   {Attached, Editable, Visible, Stable},
	ActionType:   {Attached, Editable, Visible, Stable},
	ActionSelect: {Attached, Visible},
}

// RetrySchedule is the fixed delay schedule predicates are retried on.
var RetrySchedule = []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}

// DefaultTimeout is used when a step omits an explicit timeout.
const DefaultTimeout = 5 * time.Second

// Result is what wait_for_actionable returns on success.
type Result struct {
	Box cdp.Box
}

// Options configures a wait_for_actionable call.
type Options struct {
	Timeout time.Duration
	// Force skips everything except attached, per the §4.2 force row.
	Force bool
}

func iife(call string) string {
	return fmt.Sprintf("(function(){ %s; return (%s); })()", pagescript.Bundle, call)
}

// callFn produces a CallFunctionOn functionDeclaration: the whole text
// must itself evaluate to a function, since CallFunctionOn's object
// receiver is bound via .call on whatever the declaration evaluates
// to. body runs with `this` set to the target element.
func callFn(body string) string {
	return fmt.Sprintf("(function(){ %s; return function(){ %s }; })()", pagescript.Bundle, body)
}

// WaitForActionable retries the required predicate set for kind until
// every predicate passes or the timeout elapses. On failure it returns
// the first predicate that failed and its observed reason.
func WaitForActionable(ctx context.Context, session cdp.Session, el handle.Element, kind ActionKind, opts Options) (Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout < 0 {
		return Result{}, kinds.Wrap(kinds.Validation, fmt.Errorf("negative timeout"))
	}

	required := RequiredPredicates[kind]
	if opts.Force {
		required = []Predicate{Attached}
	}
	if required == nil {
		required = []Predicate{Attached, Visible}
	}

	deadline := time.Now().Add(timeout)
	var lastPred Predicate
	var lastReason string

	for attempt := 0; ; attempt++ {
		if attempt < len(RetrySchedule) {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return Result{}, kinds.Wrap(kinds.Timeout, ctx.Err())
				case <-time.After(RetrySchedule[attempt]):
				}
			}
		} else {
			select {
			case <-ctx.Done():
				return Result{}, kinds.Wrap(kinds.Timeout, ctx.Err())
			case <-time.After(200 * time.Millisecond):
			}
		}

		ok, pred, reason, box, err := checkOnce(ctx, session, el, required)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{Box: box}, nil
		}
		lastPred, lastReason = pred, reason

		if time.Now().After(deadline) {
			break
		}
	}

	if lastPred == Editable {
		return Result{}, kinds.Wrap(kinds.NotEditable, fmt.Errorf("not editable: %s", lastReason))
	}
	return Result{}, kinds.Wrap(kinds.NotActionable, fmt.Errorf("%s failed: %s", lastPred, lastReason))
}

func checkOnce(ctx context.Context, session cdp.Session, el handle.Element, required []Predicate) (bool, Predicate, string, cdp.Box, error) {
	for _, pred := range required {
		switch pred {
		case Attached:
			ok, err := evalBoolOnObject(ctx, session, el.ObjectID, "__cdpstep.isAttached(this)")
			if err != nil {
				return false, pred, "", cdp.Box{}, err
			}
			if !ok {
				return false, pred, "detached", cdp.Box{}, nil
			}
		case Visible:
			ok, err := evalBoolOnObject(ctx, session, el.ObjectID, "__cdpstep.isVisible(this)")
			if err != nil {
				return false, pred, "", cdp.Box{}, err
			}
			if !ok {
				return false, pred, "not visible", cdp.Box{}, nil
			}
		case Enabled:
			ok, err := evalBoolOnObject(ctx, session, el.ObjectID, "__cdpstep.isEnabled(this)")
			if err != nil {
				return false, pred, "", cdp.Box{}, err
			}
			if !ok {
				return false, pred, "disabled", cdp.Box{}, nil
			}
		case Editable:
			ok, err := evalBoolOnObject(ctx, session, el.ObjectID, "__cdpstep.isEditable(this)")
			if err != nil {
				return false, pred, "", cdp.Box{}, err
			}
			if !ok {
				return false, pred, "not editable", cdp.Box{}, nil
			}
		case Stable:
			stable, err := checkStable(ctx, session, el)
			if err != nil {
				return false, pred, "", cdp.Box{}, err
			}
			if !stable {
				return false, pred, "bounding rect still changing", cdp.Box{}, nil
			}
		case Hittable:
			ok, reason, err := checkHittable(ctx, session, el)
			if err != nil {
				return false, pred, "", cdp.Box{}, err
			}
			if !ok {
				return false, pred, reason, cdp.Box{}, nil
			}
		}
	}
	box, err := GetClickablePoint(ctx, session, el)
	return true, "", "", box, err
}

func checkStable(ctx context.Context, session cdp.Session, el handle.Element) (bool, error) {
	r1, err := rectOf(ctx, session, el)
	if err != nil || r1 == nil {
		return false, err
	}
	if _, err := session.Eval(ctx, el.Context, iife("__cdpstep.waitFrame()"), nil, true, true); err != nil {
		return false, err
	}
	r2, err := rectOf(ctx, session, el)
	if err != nil || r2 == nil {
		return false, err
	}
	return *r1 == *r2, nil
}

type rect struct{ X, Y, W, H float64 }

func rectOf(ctx context.Context, session cdp.Session, el handle.Element) (*rect, error) {
	res, err := session.CallFunctionOn(ctx, el.ObjectID, callFn("return __cdpstep.rectOf(this);"), nil, true)
	if err != nil {
		return nil, err
	}
	m, ok := res.Value.(map[string]any)
	if !ok || m == nil {
		return nil, nil
	}
	return &rect{X: asFloat(m["x"]), Y: asFloat(m["y"]), W: asFloat(m["width"]), H: asFloat(m["height"])}, nil
}

func checkHittable(ctx context.Context, session cdp.Session, el handle.Element) (bool, string, error) {
	res, err := session.CallFunctionOn(ctx, el.ObjectID, callFn("return __cdpstep.hittable(this);"), nil, true)
	if err != nil {
		return false, "", err
	}
	m, _ := res.Value.(map[string]any)
	if m == nil {
		return false, "unknown", nil
	}
	matches, _ := m["matches"].(bool)
	received, _ := m["received"].(string)
	return matches, received, nil
}

// GetClickablePoint returns the element's bounding box; callers take
// its Center() as the click point.
func GetClickablePoint(ctx context.Context, session cdp.Session, el handle.Element) (cdp.Box, error) {
	res, err := session.CallFunctionOn(ctx, el.ObjectID, callFn("return __cdpstep.clickablePoint(this);"), nil, true)
	if err != nil {
		return cdp.Box{}, err
	}
	m, ok := res.Value.(map[string]any)
	if !ok {
		return cdp.Box{}, kinds.Wrap(kinds.NotActionable, fmt.Errorf("no bounding rect"))
	}
	rectM, _ := m["rect"].(map[string]any)
	return cdp.Box{
		X: asFloat(rectM["x"]), Y: asFloat(rectM["y"]),
		Width: asFloat(rectM["width"]), Height: asFloat(rectM["height"]),
	}, nil
}

// CheckCovered reports whether the topmost element at el's center
// differs from el, using the in-page elementFromPoint check
// (__cdpstep.hittable). DOM.getNodeForLocation is not consulted, and p
// is not used: the point tested is always the element's center.
func CheckCovered(ctx context.Context, session cdp.Session, el handle.Element, p cdp.Point) (covered bool, blocker string, err error) {
	res, err := session.CallFunctionOn(ctx, el.ObjectID, callFn("return __cdpstep.hittable(this);"), nil, true)
	if err != nil {
		return false, "", err
	}
	m, _ := res.Value.(map[string]any)
	matches, _ := m["matches"].(bool)
	received, _ := m["received"].(string)
	return !matches, received, nil
}

// ScrollUntilVisible repeatedly scrolls in direction until selector
// resolves visibly or maxScrolls is exhausted.
func ScrollUntilVisible(ctx context.Context, session cdp.Session, cx cdp.ContextID, selector string, maxScrolls int, scrollAmount float64, direction string) error {
	dx, dy := 0.0, scrollAmount
	if direction == "horizontal" {
		dx, dy = scrollAmount, 0
	}
	for i := 0; i < maxScrolls; i++ {
		res, err := session.Eval(ctx, cx, iife("(function(){ const el = __cdpstep.queryOne(arguments_[0]); return el ? __cdpstep.isVisible(el) : false; })()"), []any{selector}, true, false)
		if err != nil {
			return err
		}
		if visible, _ := res.Value.(bool); visible {
			return nil
		}
		if _, err := session.Eval(ctx, cx, iife("__cdpstep.scrollBy(arguments_[0], arguments_[1])"), []any{dx, dy}, true, false); err != nil {
			return err
		}
	}
	return kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("selector %q not visible after %d scrolls", selector, maxScrolls))
}

func evalBoolOnObject(ctx context.Context, session cdp.Session, objectID cdp.ObjectID, call string) (bool, error) {
	res, err := session.CallFunctionOn(ctx, objectID, callFn("return "+call+";"), nil, true)
	if err != nil {
		return false, err
	}
	b, _ := res.Value.(bool)
	return b, nil
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
