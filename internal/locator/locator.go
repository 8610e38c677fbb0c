// Package locator implements the Element Locator (§4.1): CSS/role/text
// lookups that return opaque element handles scoped to one execution
// context. Grounded on agent/tools/browser.go's selector-driven element
// lookup, generalized from backend-node-id based lookups to the
// handle.Element convention shared across the engine, with the actual
// DOM walking expressed as fixed in-page script (internal/pagescript)
// per the redesign notes.
package locator

import (
	"context"
	"fmt"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/handle"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/pagescript"
)

// Locator resolves selectors/roles/text to element handles within one
// frame's execution context.
type Locator struct {
	Session cdp.Session
	Context cdp.ContextID
}

// RoleOptions filters a query_by_role call.
type RoleOptions struct {
	Name     string
	Checked  *bool
	Disabled *bool
}

// TextOptions filters a find_by_text call.
type TextOptions struct {
	Exact  bool
	Tag    string
	Within string
}

func iife(call string) string {
	return fmt.Sprintf("(function(){ %s; return (%s); })()", pagescript.Bundle, call)
}

// QueryOne returns the first element matching selector, or a zero
// handle if none exists. An invalid selector fails immediately — it is
// not retried by the actionability layer.
func (l *Locator) QueryOne(ctx context.Context, selector string) (handle.Element, error) {
	if selector == "" {
		return handle.Element{}, kinds.Wrap(kinds.Validation, fmt.Errorf("empty selector"))
	}
	res, err := l.Session.Eval(ctx, l.Context, iife("__cdpstep.queryOne(arguments_[0])"), []any{selector}, false, false)
	if err != nil {
		return handle.Element{}, err
	}
	if res.ExceptionText != "" {
		return handle.Element{}, kinds.Wrap(kinds.Validation, fmt.Errorf("%s", res.ExceptionText))
	}
	if res.ObjectID == "" {
		return handle.Element{}, nil
	}
	return handle.Element{Context: l.Context, ObjectID: res.ObjectID, Selector: selector}, nil
}

// QueryAll returns every element matching selector. Each element is
// re-fetched by index under the assumption that the DOM does not
// mutate between the count read and the per-index reads — true for the
// single-threaded cooperative model this engine runs under absent
// external interference, which the resolver handles separately.
func (l *Locator) QueryAll(ctx context.Context, selector string) ([]handle.Element, error) {
	if selector == "" {
		return nil, kinds.Wrap(kinds.Validation, fmt.Errorf("empty selector"))
	}
	countRes, err := l.Session.Eval(ctx, l.Context, iife("__cdpstep.queryAll(arguments_[0]).length"), []any{selector}, true, false)
	if err != nil {
		return nil, err
	}
	if countRes.ExceptionText != "" {
		return nil, kinds.Wrap(kinds.Validation, fmt.Errorf("%s", countRes.ExceptionText))
	}
	count := toInt(countRes.Value)

	out := make([]handle.Element, 0, count)
	for i := 0; i < count; i++ {
		res, err := l.Session.Eval(ctx, l.Context, iife("__cdpstep.queryAll(arguments_[0])[arguments_[1]]"), []any{selector, i}, false, false)
		if err != nil {
			releaseAll(ctx, l.Session, out)
			return nil, err
		}
		if res.ObjectID == "" {
			continue
		}
		out = append(out, handle.Element{Context: l.Context, ObjectID: res.ObjectID, Selector: selector})
	}
	return out, nil
}

// QueryByRole resolves an abstract ARIA role to its canonical selector
// disjunction and filters in-page on name/checked/disabled.
func (l *Locator) QueryByRole(ctx context.Context, role string, opts RoleOptions) ([]handle.Element, error) {
	if role == "" {
		return nil, kinds.Wrap(kinds.Validation, fmt.Errorf("empty role"))
	}
	jsOpts := map[string]any{"name": opts.Name}
	if opts.Checked != nil {
		jsOpts["checked"] = *opts.Checked
	}
	if opts.Disabled != nil {
		jsOpts["disabled"] = *opts.Disabled
	}

	countRes, err := l.Session.Eval(ctx, l.Context, iife("__cdpstep.queryByRole(arguments_[0], arguments_[1]).length"), []any{role, jsOpts}, true, false)
	if err != nil {
		return nil, err
	}
	count := toInt(countRes.Value)

	out := make([]handle.Element, 0, count)
	for i := 0; i < count; i++ {
		res, err := l.Session.Eval(ctx, l.Context, iife("__cdpstep.queryByRole(arguments_[0], arguments_[1])[arguments_[2]]"), []any{role, jsOpts, i}, false, false)
		if err != nil {
			releaseAll(ctx, l.Session, out)
			return nil, err
		}
		if res.ObjectID == "" {
			continue
		}
		out = append(out, handle.Element{Context: l.Context, ObjectID: res.ObjectID})
	}
	return out, nil
}

// FindByText searches priority groups (buttons, links, [role=button],
// everything else) for the first visible element whose text matches.
func (l *Locator) FindByText(ctx context.Context, text string, opts TextOptions) (handle.Element, error) {
	if text == "" {
		return handle.Element{}, kinds.Wrap(kinds.Validation, fmt.Errorf("empty text"))
	}
	jsOpts := map[string]any{"exact": opts.Exact, "tag": opts.Tag, "within": opts.Within}
	res, err := l.Session.Eval(ctx, l.Context, iife("__cdpstep.findByText(arguments_[0], arguments_[1])"), []any{text, jsOpts}, false, false)
	if err != nil {
		return handle.Element{}, err
	}
	if res.ObjectID == "" {
		return handle.Element{}, nil
	}
	return handle.Element{Context: l.Context, ObjectID: res.ObjectID}, nil
}

// WaitForSelector blocks (via page-side MutationObserver, §4.1) until
// selector matches or timeout elapses.
func (l *Locator) WaitForSelector(ctx context.Context, selector string, timeout time.Duration, requireVisible bool) (handle.Element, error) {
	if timeout < 0 {
		return handle.Element{}, kinds.Wrap(kinds.Validation, fmt.Errorf("negative timeout"))
	}
	res, err := l.Session.Eval(ctx, l.Context,
		iife("__cdpstep.waitForSelector(arguments_[0], arguments_[1], arguments_[2])"),
		[]any{selector, timeout.Milliseconds(), requireVisible}, false, true)
	if err != nil {
		return handle.Element{}, err
	}
	if res.ExceptionText != "" {
		return handle.Element{}, kinds.Wrap(kinds.Validation, fmt.Errorf("%s", res.ExceptionText))
	}
	if res.ObjectID == "" {
		return handle.Element{}, kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("selector %q did not match within %s", selector, timeout))
	}
	return handle.Element{Context: l.Context, ObjectID: res.ObjectID, Selector: selector}, nil
}

// WaitForText blocks until the page's visible text contains text.
func (l *Locator) WaitForText(ctx context.Context, text string, timeout time.Duration, caseSensitive bool) (bool, error) {
	res, err := l.Session.Eval(ctx, l.Context,
		iife("__cdpstep.waitForText(arguments_[0], arguments_[1], arguments_[2])"),
		[]any{text, timeout.Milliseconds(), caseSensitive}, true, true)
	if err != nil {
		return false, err
	}
	ok, _ := res.Value.(bool)
	if !ok {
		return false, kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("text %q did not appear within %s", text, timeout))
	}
	return true, nil
}

func releaseAll(ctx context.Context, session cdp.Session, els []handle.Element) {
	for _, e := range els {
		_ = e.Release(ctx, session)
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
