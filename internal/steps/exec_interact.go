package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdpstep/cdpstep/internal/actionable"
	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/handle"
	"github.com/cdpstep/cdpstep/internal/input"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/locator"
)

// execClick implements the click contract (§4.5): resolve target,
// auto-wait, then dispatch via Input at the box center; a failed
// dispatch resets pressed buttons. The element is not scrolled into
// view first, and a failed actionability wait is not retried with
// other scroll positions.
func (e *Executor) execClick(ctx context.Context, step Step) (any, string, error) {
	var p ClickParams
	var bareSelector string
	if err := json.Unmarshal(step.Params, &bareSelector); err == nil {
		p.Selector = bareSelector
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}

	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}

	if len(p.Selectors) > 0 {
		for _, sel := range p.Selectors {
			out, warn, err := e.clickOne(ctx, cx, target{Selector: sel}, p)
			if err == nil {
				return out, warn, nil
			}
		}
		return nil, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("none of %d candidate selectors matched", len(p.Selectors)))
	}

	t := target{Selector: p.Selector, Ref: p.Ref, Text: p.Text, X: p.X, Y: p.Y}
	return e.clickOne(ctx, cx, t, p)
}

func (e *Executor) clickOne(ctx context.Context, cx cdp.ContextID, t target, p ClickParams) (any, string, error) {
	if t.X != nil && t.Y != nil {
		pt := cdp.Point{X: *t.X, Y: *t.Y}
		if err := input.Click(ctx, e.Session, pt, cdp.ButtonLeft, 1); err != nil {
			input.ResetButtons(ctx, e.Session, pt)
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"clicked": true, "x": pt.X, "y": pt.Y}, "", nil
	}

	el, warning, err := e.resolveTarget(ctx, cx, t)
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, el)

	opts := actionable.Options{Timeout: msToDuration(p.Timeout), Force: p.Force}
	res, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionClick, opts)
	if err != nil {
		return nil, warning, err
	}

	if p.Verify {
		_, _ = e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ const el = this; el.__cdpstepClicked = false; el.addEventListener('click', function(){ el.__cdpstepClicked = true; }, {once: true}); return true; }; })()", nil, true)
	}
	center := res.Box.Center()
	if err := input.Click(ctx, e.Session, center, cdp.ButtonLeft, 1); err != nil {
		input.ResetButtons(ctx, e.Session, center)
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}

	out := map[string]any{"clicked": true}
	if p.Verify {
		verified, verr := e.verifyClick(ctx, el)
		if verr == nil {
			out["verified"] = verified
		}
	}
	return out, warning, nil
}

// verifyClick reads back the flag set by the one-shot click listener
// clickOne installs on el before dispatch: true once a click event
// reached el.
func (e *Executor) verifyClick(ctx context.Context, el handle.Element) (bool, error) {
	res, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ return this.__cdpstepClicked === true; }; })()", nil, true)
	if err != nil {
		return false, err
	}
	b, _ := res.Value.(bool)
	return b, nil
}

func (e *Executor) execHover(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string   `json:"selector"`
		Ref      string   `json:"ref"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Timeout  int      `json:"timeout"`
	}
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Selector = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}

	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	if p.X != nil && p.Y != nil {
		pt := cdp.Point{X: *p.X, Y: *p.Y}
		return map[string]any{"hovered": true}, "", input.Hover(ctx, e.Session, pt)
	}
	el, warning, err := e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, el)

	res, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionHover, actionable.Options{Timeout: msToDuration(p.Timeout)})
	if err != nil {
		return nil, warning, err
	}
	if err := input.Hover(ctx, e.Session, res.Box.Center()); err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"hovered": true}, warning, nil
}

// execFill implements the fill contract (§4.5): lazily resolve,
// validate editable, click the center to focus, select-all if clear,
// insert. The element is not scrolled into view first.
func (e *Executor) execFill(ctx context.Context, step Step) (any, string, error) {
	var p FillParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}

	var el handle.Element
	var warning string
	if p.Label != "" {
		loc := &locator.Locator{Session: e.Session, Context: cx}
		el, err = loc.QueryOne(ctx, fmt.Sprintf("[aria-label=%q]", p.Label))
		if err != nil || !el.Valid() {
			byRole, rerr := loc.FindByText(ctx, p.Label, locator.TextOptions{})
			if rerr != nil || !byRole.Valid() {
				return nil, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("no control labeled %q", p.Label))
			}
			el = byRole
		}
	} else {
		el, warning, err = e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
		if err != nil {
			return nil, "", err
		}
	}
	defer releaseIfValid(ctx, e.Session, el)

	res, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionFill, actionable.Options{})
	if err != nil {
		return nil, warning, err
	}

	if p.React {
		if err := e.setValueNative(ctx, el, p.Value); err != nil {
			return nil, warning, err
		}
		return map[string]any{"filled": true, "value": p.Value}, warning, nil
	}

	center := res.Box.Center()
	if err := input.Click(ctx, e.Session, center, cdp.ButtonLeft, 1); err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	if p.Clear {
		if err := input.SelectAll(ctx, e.Session); err != nil {
			return nil, warning, kinds.Wrap(kinds.Execution, err)
		}
		if p.Value == "" {
			if err := input.Delete(ctx, e.Session); err != nil {
				return nil, warning, kinds.Wrap(kinds.Execution, err)
			}
			if err := e.dispatchInputChange(ctx, el); err != nil {
				return nil, warning, err
			}
			return map[string]any{"filled": true, "value": ""}, warning, nil
		}
	}
	if err := input.Type(ctx, e.Session, p.Value); err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"filled": true, "value": p.Value}, warning, nil
}

// setValueNative bypasses keyboard emulation, setting value through
// the element's prototype native setter and firing input+change —
// the `react: true` contract for controlled React inputs.
func (e *Executor) setValueNative(ctx context.Context, el handle.Element, value string) error {
	const body = `
		const proto = Object.getPrototypeOf(this);
		const setter = Object.getOwnPropertyDescriptor(proto, 'value') &&
			Object.getOwnPropertyDescriptor(proto, 'value').set;
		if (setter) { setter.call(this, arguments[0]); } else { this.value = arguments[0]; }
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	`
	_, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ "+body+" }; })()", []any{value}, true)
	return err
}

func (e *Executor) dispatchInputChange(ctx context.Context, el handle.Element) error {
	const body = `this.dispatchEvent(new Event('input', {bubbles: true})); this.dispatchEvent(new Event('change', {bubbles: true})); return true;`
	_, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ "+body+" }; })()", nil, true)
	return err
}

func (e *Executor) execFillActive(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Value string `json:"value"`
		Clear bool   `json:"clear"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.Clear {
		if err := input.SelectAll(ctx, e.Session); err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
		if err := input.Delete(ctx, e.Session); err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
	}
	if err := input.Type(ctx, e.Session, p.Value); err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"filled": true, "value": p.Value}, "", nil
}

func (e *Executor) execPress(ctx context.Context, step Step) (any, string, error) {
	var p PressParams
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Key = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.Selector != "" || p.Ref != "" {
		cx, err := e.Controller.CurrentContext(ctx)
		if err != nil {
			return nil, "", err
		}
		el, warning, err := e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
		if err != nil {
			return nil, "", err
		}
		defer releaseIfValid(ctx, e.Session, el)
		if _, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionClick, actionable.Options{}); err != nil {
			return nil, warning, err
		}
		if err := input.Key(ctx, e.Session, p.Key, ""); err != nil {
			return nil, warning, kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"pressed": p.Key}, warning, nil
	}
	if err := input.Key(ctx, e.Session, p.Key, ""); err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"pressed": p.Key}, "", nil
}

func (e *Executor) execType(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Ref      string `json:"ref"`
		Text     string `json:"text"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	var warning string
	if p.Selector != "" || p.Ref != "" {
		el, w, err := e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
		if err != nil {
			return nil, "", err
		}
		warning = w
		defer releaseIfValid(ctx, e.Session, el)
		if _, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionType, actionable.Options{}); err != nil {
			return nil, warning, err
		}
	}
	if err := input.Type(ctx, e.Session, p.Text); err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"typed": p.Text}, warning, nil
}

func (e *Executor) execSelectText(ctx context.Context, step Step) (any, string, error) {
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
	res, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionFill, actionable.Options{})
	if err != nil {
		return nil, warning, err
	}
	if err := input.Click(ctx, e.Session, res.Box.Center(), cdp.ButtonLeft, 1); err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	if err := input.SelectAll(ctx, e.Session); err != nil {
		return nil, warning, kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"selected": true}, warning, nil
}

func (e *Executor) execSelectOption(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Ref      string `json:"ref"`
		Value    string `json:"value"`
		Label    string `json:"label"`
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
	if _, err := actionable.WaitForActionable(ctx, e.Session, el, actionable.ActionSelect, actionable.Options{}); err != nil {
		return nil, warning, err
	}

	const body = `
		const want = arguments[0], byLabel = arguments[1];
		let matched = null;
		for (const opt of this.options) {
			if ((byLabel && opt.text === want) || (!byLabel && opt.value === want)) { matched = opt; break; }
		}
		if (!matched) return false;
		matched.selected = true;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	`
	want, byLabel := p.Value, false
	if p.Value == "" && p.Label != "" {
		want, byLabel = p.Label, true
	}
	res, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ "+body+" }; })()", []any{want, byLabel}, true)
	if err != nil {
		return nil, warning, kinds.Wrap(kinds.EvalError, err)
	}
	matched, _ := res.Value.(bool)
	if !matched {
		return nil, warning, kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("no option matching %q", want))
	}
	return map[string]any{"selected": want}, warning, nil
}

func (e *Executor) execSubmit(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Ref      string `json:"ref"`
	}
	_ = json.Unmarshal(step.Params, &p)
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	var el handle.Element
	var warning string
	if p.Selector != "" || p.Ref != "" {
		el, warning, err = e.resolveTarget(ctx, cx, target{Selector: p.Selector, Ref: p.Ref})
		if err != nil {
			return nil, "", err
		}
		defer releaseIfValid(ctx, e.Session, el)
		res, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ if (this.requestSubmit) { this.requestSubmit(); } else { this.submit(); } return true; }; })()", nil, true)
		if err != nil {
			return nil, warning, kinds.Wrap(kinds.EvalError, err)
		}
		ok, _ := res.Value.(bool)
		return map[string]any{"submitted": ok}, warning, nil
	}
	res, err := e.Session.Eval(ctx, cx, "(function(){ const f = document.querySelector('form'); if (!f) return false; if (f.requestSubmit) { f.requestSubmit(); } else { f.submit(); } return true; })()", nil, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	ok, _ := res.Value.(bool)
	if !ok {
		return nil, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("no form on page"))
	}
	return map[string]any{"submitted": true}, "", nil
}

// execDrag implements the drag contract (§4.5): mouse-event sequence
// first, HTML5 DnD fallback, with a slider short-circuit.
func (e *Executor) execDrag(ctx context.Context, step Step) (any, string, error) {
	var p DragParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.Steps == 0 {
		p.Steps = 10
	}
	method := p.Method
	if method == "" {
		method = "auto"
	}

	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}

	srcEl, srcPt, srcWarn, err := e.resolveDragEndpoint(ctx, cx, p.Source)
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, srcEl)
	dstEl, dstPt, dstWarn, err := e.resolveDragEndpoint(ctx, cx, p.Target)
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, dstEl)

	warning := srcWarn
	if warning == "" {
		warning = dstWarn
	}

	if srcEl.Valid() {
		isRange, rerr := e.isRangeInput(ctx, srcEl)
		if rerr == nil && isRange {
			if err := e.dragRangeInput(ctx, srcEl, dstPt); err != nil {
				return nil, warning, err
			}
			return map[string]any{"dragged": true, "method": "range"}, warning, nil
		}
	}

	delay := msToDuration(p.Delay)
	if method == "auto" || method == "mouse" {
		if err := input.MouseSequence(ctx, e.Session, srcPt, dstPt, p.Steps, delay); err != nil {
			if method == "mouse" {
				return nil, warning, kinds.Wrap(kinds.Execution, err)
			}
		} else {
			return map[string]any{"dragged": true, "method": "mouse"}, warning, nil
		}
	}
	if method == "auto" || method == "html5" {
		if err := e.dragHTML5(ctx, srcEl, dstEl); err != nil {
			return nil, warning, kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"dragged": true, "method": "html5"}, warning, nil
	}
	return nil, warning, kinds.Wrap(kinds.Execution, fmt.Errorf("drag did not complete by any method"))
}

func (e *Executor) resolveDragEndpoint(ctx context.Context, cx cdp.ContextID, ep DragEndpoint) (handle.Element, cdp.Point, string, error) {
	if ep.X != nil && ep.Y != nil {
		return handle.Element{}, cdp.Point{X: *ep.X, Y: *ep.Y}, "", nil
	}
	el, warning, err := e.resolveTarget(ctx, cx, target{Selector: ep.Selector, Ref: ep.Ref})
	if err != nil {
		return handle.Element{}, cdp.Point{}, "", err
	}
	box, err := actionable.GetClickablePoint(ctx, e.Session, el)
	if err != nil {
		releaseIfValid(ctx, e.Session, el)
		return handle.Element{}, cdp.Point{}, warning, err
	}
	pt := box.Center()
	pt.X += ep.OffsetX
	pt.Y += ep.OffsetY
	return el, pt, warning, nil
}

func (e *Executor) isRangeInput(ctx context.Context, el handle.Element) (bool, error) {
	res, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ return this.tagName === 'INPUT' && this.type === 'range'; }; })()", nil, true)
	if err != nil {
		return false, err
	}
	b, _ := res.Value.(bool)
	return b, nil
}

func (e *Executor) dragRangeInput(ctx context.Context, el handle.Element, dst cdp.Point) error {
	const body = `
		const rect = this.getBoundingClientRect();
		const frac = Math.min(1, Math.max(0, (arguments[0] - rect.left) / rect.width));
		const min = parseFloat(this.min || '0'), max = parseFloat(this.max || '100');
		this.value = String(min + frac * (max - min));
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	`
	_, err := e.Session.CallFunctionOn(ctx, el.ObjectID, "(function(){ return function(){ "+body+" }; })()", []any{dst.X}, true)
	return err
}

func (e *Executor) dragHTML5(ctx context.Context, src, dst handle.Element) error {
	if !src.Valid() || !dst.Valid() {
		return fmt.Errorf("html5 drag requires both endpoints to be elements")
	}
	const body = `
		const dt = new DataTransfer();
		const fire = (el, type) => el.dispatchEvent(new DragEvent(type, {bubbles: true, cancelable: true, dataTransfer: dt}));
		fire(this, 'dragstart');
		fire(this, 'drag');
		fire(arguments[0], 'dragenter');
		fire(arguments[0], 'dragover');
		fire(arguments[0], 'drop');
		fire(this, 'dragend');
		return true;
	`
	_, err := e.Session.CallFunctionOn(ctx, src.ObjectID, "(function(){ return function(){ "+body+" }; })()", []any{dst.ObjectID}, true)
	return err
}

func (e *Executor) execScroll(ctx context.Context, step Step) (any, string, error) {
	var p ScrollParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.MaxScrolls == 0 {
		p.MaxScrolls = 10
	}
	if p.ScrollAmount == 0 {
		p.ScrollAmount = 400
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	if p.Selector == "" {
		return nil, "", kinds.Wrap(kinds.Validation, fmt.Errorf("scroll requires a selector"))
	}
	if err := actionable.ScrollUntilVisible(ctx, e.Session, cx, p.Selector, p.MaxScrolls, p.ScrollAmount, p.Direction); err != nil {
		return nil, "", err
	}
	return map[string]any{"scrolled": true}, "", nil
}

func msToDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
