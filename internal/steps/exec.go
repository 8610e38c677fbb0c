// Executors (§4.5): each recognized action composes the locator,
// actionability, input, and snapshot layers into one operation that
// takes a parsed Step and returns a StepResult. Grounded on
// internal/browser/actions.go's one-method-per-action shape
// (NavigateOptions/ClickOptions/... -> ActionResult), reshaped from
// Playwright locator calls onto this engine's locator/actionable/input
// packages, and on agent/tools/browser.go's ref-addressed click/type
// for the {selector|ref|text} addressing modes actions.go doesn't have.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/handle"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/locator"
	"github.com/cdpstep/cdpstep/internal/pagectl"
	"github.com/cdpstep/cdpstep/internal/pagescript"
	"github.com/cdpstep/cdpstep/internal/paths"
	"github.com/cdpstep/cdpstep/internal/registry"
	"github.com/cdpstep/cdpstep/internal/resolver"
)

// StepError is the §7 per-step error object.
type StepError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StepResult is one entry of the response's `steps` array (§6).
type StepResult struct {
	Action  Action     `json:"action"`
	Status  string     `json:"status"` // "ok" | "error" | "skipped"
	Output  any        `json:"output,omitempty"`
	Warning string     `json:"warning,omitempty"`
	Error   *StepError `json:"error,omitempty"`
}

// Executor holds every external collaborator a step body may need.
// One Executor is built per invocation and reused across all steps in
// the request, since the Page Controller's frame context and the
// registry both span the whole run.
type Executor struct {
	Session    cdp.Session
	Controller *pagectl.Controller
	Registry   *registry.Registry
	StateDir   string
	TabAlias   string

	DefaultStepTimeout time.Duration
}

func (e *Executor) stepTimeout(requested int) time.Duration {
	if requested > 0 {
		return time.Duration(requested) * time.Millisecond
	}
	if e.DefaultStepTimeout > 0 {
		return e.DefaultStepTimeout
	}
	return 30 * time.Second
}

// Run executes one validated step, enforcing its deadline and
// releasing any handle it acquired on every exit path (§5 cleanup
// guarantee). A panic-free classification into one of the §7 error
// kinds always happens before an error crosses this boundary.
func (e *Executor) Run(parent context.Context, step Step) StepResult {
	result := StepResult{Action: step.Action, Status: "ok"}

	timeout := e.stepTimeout(0)
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	out, warning, err := e.dispatch(ctx, step)
	if err != nil {
		if ctx.Err() != nil && kinds.Of(err) != kinds.Timeout {
			err = kinds.Wrap(kinds.Timeout, err)
		}
		if step.Optional {
			result.Status = "skipped"
			result.Warning = err.Error()
			return result
		}
		result.Status = "error"
		result.Error = &StepError{Type: string(kinds.Of(err)), Message: err.Error()}
		return result
	}
	result.Output = out
	result.Warning = warning
	return result
}

func (e *Executor) dispatch(ctx context.Context, step Step) (any, string, error) {
	switch step.Action {
	case ActionGoto:
		return e.execGoto(ctx, step)
	case ActionReload:
		return e.execReload(ctx, step)
	case ActionBack:
		return nil, "", e.Controller.Back(ctx)
	case ActionForward:
		return nil, "", e.Controller.Forward(ctx)
	case ActionWaitForNav:
		return e.execWaitForNavigation(ctx, step)
	case ActionViewport:
		return e.execViewport(ctx, step)
	case ActionWait:
		return e.execWait(ctx, step)
	case ActionSleep:
		return e.execSleep(ctx, step)
	case ActionClick:
		return e.execClick(ctx, step)
	case ActionHover:
		return e.execHover(ctx, step)
	case ActionFill:
		return e.execFill(ctx, step)
	case ActionFillActive:
		return e.execFillActive(ctx, step)
	case ActionPress:
		return e.execPress(ctx, step)
	case ActionType:
		return e.execType(ctx, step)
	case ActionSelectText:
		return e.execSelectText(ctx, step)
	case ActionSelectOption:
		return e.execSelectOption(ctx, step)
	case ActionSubmit:
		return e.execSubmit(ctx, step)
	case ActionDrag:
		return e.execDrag(ctx, step)
	case ActionScroll:
		return e.execScroll(ctx, step)
	case ActionQuery:
		return e.execQuery(ctx, step)
	case ActionQueryAll:
		return e.execQueryAll(ctx, step)
	case ActionInspect:
		return e.execInspect(ctx, step)
	case ActionElementsAt:
		return e.execElementsAt(ctx, step)
	case ActionGetBox:
		return e.execGetBox(ctx, step)
	case ActionGetDom:
		return e.execGetDom(ctx, step)
	case ActionGetURL:
		return e.execGetURL(ctx, step)
	case ActionGetTitle:
		return e.execGetTitle(ctx, step)
	case ActionGet:
		return e.execGet(ctx, step)
	case ActionAssert:
		return e.execAssert(ctx, step)
	case ActionFormState:
		return e.execFormState(ctx, step)
	case ActionExtract:
		return e.execExtract(ctx, step)
	case ActionFrame:
		return e.execFrame(ctx, step)
	case ActionSnapshot:
		return e.execSnapshot(ctx, step)
	case ActionSnapshotSearch:
		return e.execSnapshotSearch(ctx, step)
	case ActionEval:
		return e.execEval(ctx, step)
	case ActionPoll:
		return e.execPoll(ctx, step)
	case ActionPageFunction:
		return e.execPageFunction(ctx, step)
	case ActionConsole:
		return e.execConsole(ctx, step)
	case ActionPDF:
		return e.execPDF(ctx, step)
	case ActionCookies:
		return e.execCookies(ctx, step)
	case ActionListTabs:
		return e.execListTabs(ctx, step)
	case ActionNewTab:
		return e.execNewTab(ctx, step)
	case ActionCloseTab:
		return e.execCloseTab(ctx, step)
	case ActionSwitchTab:
		return e.execSwitchTab(ctx, step)
	case ActionWriteSiteProfile:
		return e.execWriteSiteProfile(ctx, step)
	case ActionReadSiteProfile:
		return e.execReadSiteProfile(ctx, step)
	default:
		return nil, "", kinds.Wrap(kinds.Validation, fmt.Errorf("unimplemented action %q", step.Action))
	}
}

// --- shared addressing helper ---

// target describes the common {selector|ref|text|x,y} addressing
// modes click/fill/press/hover share (§4.5).
type target struct {
	Selector string
	Ref      string
	Text     string
	X        *float64
	Y        *float64
}

// resolveTarget locates target in cx, releasing nothing itself — the
// caller owns the returned handle and must release it.
func (e *Executor) resolveTarget(ctx context.Context, cx cdp.ContextID, t target) (handle.Element, string, error) {
	loc := &locator.Locator{Session: e.Session, Context: cx}

	switch {
	case t.Ref != "":
		res, err := resolver.Resolve(ctx, e.Session, cx, t.Ref)
		if err != nil {
			return handle.Element{}, "", err
		}
		switch res.Outcome {
		case resolver.Resolved:
			warning := ""
			if res.ReResolved {
				warning = fmt.Sprintf("ref %q re-resolved to a different node", t.Ref)
			}
			return res.Element, warning, nil
		case resolver.Stale:
			return handle.Element{}, "", kinds.Wrap(kinds.Stale, fmt.Errorf("ref %q is no longer attached", t.Ref))
		default:
			return handle.Element{}, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("ref %q was never recorded", t.Ref))
		}
	case t.Selector != "":
		el, err := loc.QueryOne(ctx, t.Selector)
		if err != nil {
			return handle.Element{}, "", err
		}
		if !el.Valid() {
			return handle.Element{}, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("selector %q matched nothing", t.Selector))
		}
		return el, "", nil
	case t.Text != "":
		el, err := loc.FindByText(ctx, t.Text, locator.TextOptions{})
		if err != nil {
			return handle.Element{}, "", err
		}
		if !el.Valid() {
			return handle.Element{}, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("text %q matched nothing", t.Text))
		}
		return el, "", nil
	default:
		return handle.Element{}, "", kinds.Wrap(kinds.Validation, fmt.Errorf("no addressing mode given"))
	}
}

func decodeParams[T any](raw json.RawMessage, dst *T) error {
	if len(raw) == 0 {
		return kinds.Wrap(kinds.Validation, fmt.Errorf("missing parameters"))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return kinds.Wrap(kinds.Validation, fmt.Errorf("malformed parameters: %w", err))
	}
	return nil
}

func outputPath(stateDir, name, ext string) (string, error) {
	return paths.OutputPath(stateDir, name, ext)
}

// wrapExprWithBundle produces a Runtime.evaluate expression that loads
// the shared in-page bundle once (it guards its own idempotent
// install) then evaluates expr.
func wrapExprWithBundle(expr string) string {
	return "(function(){ " + pagescript.Bundle + "; return (" + expr + "); })()"
}

// pagescriptBundle exposes the bundle source to sibling files in this
// package that build their own CallFunctionOn declarations.
func pagescriptBundle() string { return pagescript.Bundle }

// releaseIfValid is the handle-cleanup helper every executor defers
// immediately after resolving a target (§3 invariant ii, §5 cleanup
// guarantee).
func releaseIfValid(ctx context.Context, session cdp.Session, el handle.Element) {
	if el.Valid() {
		_ = el.Release(ctx, session)
	}
}
