package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cdpstep/cdpstep/internal/actionable"
	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/locator"
)

func (e *Executor) execQuery(ctx context.Context, step Step) (any, string, error) {
	var selector string
	if err := json.Unmarshal(step.Params, &selector); err != nil {
		var p struct {
			Selector string `json:"selector"`
		}
		if err := decodeParams(step.Params, &p); err != nil {
			return nil, "", err
		}
		selector = p.Selector
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	loc := &locator.Locator{Session: e.Session, Context: cx}
	el, err := loc.QueryOne(ctx, selector)
	if err != nil {
		return nil, "", err
	}
	if !el.Valid() {
		return map[string]any{"found": false}, "", nil
	}
	defer releaseIfValid(ctx, e.Session, el)
	box, _ := actionable.GetClickablePoint(ctx, e.Session, el)
	return map[string]any{"found": true, "box": boxToMap(box)}, "", nil
}

func (e *Executor) execQueryAll(ctx context.Context, step Step) (any, string, error) {
	var selector string
	if err := json.Unmarshal(step.Params, &selector); err != nil {
		var p struct {
			Selector string `json:"selector"`
		}
		if err := decodeParams(step.Params, &p); err != nil {
			return nil, "", err
		}
		selector = p.Selector
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	loc := &locator.Locator{Session: e.Session, Context: cx}
	els, err := loc.QueryAll(ctx, selector)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		for _, el := range els {
			releaseIfValid(ctx, e.Session, el)
		}
	}()
	return map[string]any{"count": len(els)}, "", nil
}

// execInspect reports the actionability state of a target without
// acting on it — every predicate's verdict, for diagnostics.
func (e *Executor) execInspect(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Ref      string `json:"ref"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	el, warning, err := e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, el)

	checks := map[string]string{
		"attached": "__cdpstep.isAttached(this)",
		"visible":  "__cdpstep.isVisible(this)",
		"enabled":  "__cdpstep.isEnabled(this)",
		"editable": "__cdpstep.isEditable(this)",
	}
	out := map[string]any{}
	for name, call := range checks {
		res, cerr := e.Session.CallFunctionOn(ctx, el.ObjectID, wrapFnWithBundle("return "+call+";"), nil, true)
		if cerr != nil {
			out[name] = false
			continue
		}
		b, _ := res.Value.(bool)
		out[name] = b
	}
	return out, warning, nil
}

func wrapFnWithBundle(body string) string {
	return "(function(){ " + pagescriptBundle() + "; return function(){ " + body + " }; })()"
}

func (e *Executor) execElementsAt(ctx context.Context, step Step) (any, string, error) {
	var p ElementsAtParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.X == nil || p.Y == nil {
		return nil, "", kinds.Wrap(kinds.Validation, fmt.Errorf("x and y are required"))
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	res, err := e.Session.Eval(ctx, cx,
		"(function(){ const el = document.elementFromPoint(arguments_[0], arguments_[1]); if (!el) return null; return {tag: el.tagName.toLowerCase(), id: el.id || null, className: el.className || null}; })()",
		[]any{*p.X, *p.Y}, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	if res.Value == nil {
		return map[string]any{"found": false}, "", nil
	}
	return map[string]any{"found": true, "element": res.Value}, "", nil
}

func (e *Executor) execGetBox(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Ref      string `json:"ref"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	el, warning, err := e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, el)
	box, err := e.Session.GetBoxModel(ctx, el.ObjectID)
	if err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	return boxToMap(box), warning, nil
}

func (e *Executor) execGetDom(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	_ = json.Unmarshal(step.Params, &p)
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	expr := "document.documentElement.outerHTML"
	var args []any
	if p.Selector != "" {
		expr = "(function(){ const el = __cdpstep.queryOne(arguments_[0]); return el ? el.outerHTML : null; })()"
		args = []any{p.Selector}
	}
	res, err := e.Session.Eval(ctx, cx, wrapExprWithBundle(expr), args, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	return map[string]any{"html": res.Value}, "", nil
}

func (e *Executor) execGetURL(ctx context.Context, step Step) (any, string, error) {
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	res, err := e.Session.Eval(ctx, cx, "location.href", nil, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	return map[string]any{"value": res.Value}, "", nil
}

func (e *Executor) execGetTitle(ctx context.Context, step Step) (any, string, error) {
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	res, err := e.Session.Eval(ctx, cx, "document.title", nil, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	return map[string]any{"value": res.Value}, "", nil
}

// execGet is a generic property read: {selector|ref, property}.
func (e *Executor) execGet(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Ref      string `json:"ref"`
		Property string `json:"property"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.Property == "" {
		return nil, "", kinds.Wrap(kinds.Validation, fmt.Errorf("get requires a property name"))
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	el, warning, err := e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, el)
	res, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ return this[arguments[0]]; }; })()", []any{p.Property}, true)
	if err != nil {
		return nil, warning, kinds.Wrap(kinds.EvalError, err)
	}
	return map[string]any{"value": res.Value}, warning, nil
}

// execAssert evaluates a boolean page expression and errors if it is
// false, for lightweight in-sequence assertions.
func (e *Executor) execAssert(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Expression string `json:"expression"`
		Message    string `json:"message"`
	}
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Expression = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	res, err := e.Session.Eval(ctx, cx, "("+p.Expression+")", nil, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	ok, _ := res.Value.(bool)
	if !ok {
		msg := p.Message
		if msg == "" {
			msg = fmt.Sprintf("assertion failed: %s", p.Expression)
		}
		return nil, "", kinds.Wrap(kinds.Execution, fmt.Errorf("%s", msg))
	}
	return map[string]any{"passed": true}, "", nil
}

// execFormState reads every named control's current value under an
// optional root selector, for form-debugging steps.
func (e *Executor) execFormState(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	_ = json.Unmarshal(step.Params, &p)
	root := p.Selector
	if root == "" {
		root = "form"
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	const body = `
		const root = document.querySelector(arguments_[0]);
		if (!root) return null;
		const out = {};
		root.querySelectorAll('input, select, textarea').forEach(function(el) {
			const key = el.name || el.id;
			if (!key) return;
			if (el.type === 'checkbox' || el.type === 'radio') { out[key] = el.checked; }
			else { out[key] = el.value; }
		});
		return out;
	`
	res, err := e.Session.Eval(ctx, cx, "(function(){ "+body+" })()", []any{root}, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	if res.Value == nil {
		return nil, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("no form matching %q", root))
	}
	return map[string]any{"fields": res.Value}, "", nil
}

// execExtract pulls text content out of every element matching
// selector, per an optional {attribute} to read instead of textContent.
func (e *Executor) execExtract(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector  string `json:"selector"`
		Attribute string `json:"attribute"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	const body = `
		const nodes = Array.from(document.querySelectorAll(arguments_[0]));
		return nodes.slice(0, 500).map(function(el) {
			return arguments_[1] ? el.getAttribute(arguments_[1]) : el.textContent.trim();
		});
	`
	res, err := e.Session.Eval(ctx, cx, "(function(){ "+body+" })()", []any{p.Selector, p.Attribute}, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	return map[string]any{"values": res.Value}, "", nil
}

func boxToMap(b cdp.Box) map[string]any {
	return map[string]any{"x": b.X, "y": b.Y, "width": b.Width, "height": b.Height}
}
