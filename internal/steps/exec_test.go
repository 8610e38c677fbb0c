package steps

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/cdp/fakecdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/pagectl"
)

// newClickable wires a fakecdp.Session so a "#submit" selector
// resolves to one live object that satisfies every click predicate
// (attached, visible, stable, hittable) on the first check, mirroring
// a real button that is already settled on the page.
func newClickable(t *testing.T) (*fakecdp.Session, *Executor) {
	t.Helper()
	s := fakecdp.New("target1")
	var objID cdp.ObjectID

	s.EvalFunc = func(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error) {
		switch {
		case strings.Contains(expression, "__cdpstep.queryOne("):
			if objID == "" {
				objID = s.NewObject()
			}
			return cdp.EvalResult{ObjectID: objID}, nil
		case strings.Contains(expression, "__cdpstep.waitFrame("):
			return cdp.EvalResult{Value: true}, nil
		}
		return cdp.EvalResult{}, nil
	}

	s.CallFunctionOnFunc = func(ctx context.Context, objectID cdp.ObjectID, fn string, args []any, returnByValue bool) (cdp.EvalResult, error) {
		switch {
		case strings.Contains(fn, "__cdpstep.isAttached("), strings.Contains(fn, "__cdpstep.isVisible("):
			return cdp.EvalResult{Value: true}, nil
		case strings.Contains(fn, "__cdpstep.rectOf("):
			return cdp.EvalResult{Value: map[string]any{"x": 1.0, "y": 2.0, "width": 10.0, "height": 5.0}}, nil
		case strings.Contains(fn, "__cdpstep.hittable("):
			return cdp.EvalResult{Value: map[string]any{"matches": true, "received": ""}}, nil
		case strings.Contains(fn, "__cdpstep.clickablePoint("):
			return cdp.EvalResult{Value: map[string]any{"rect": map[string]any{"x": 1.0, "y": 2.0, "width": 10.0, "height": 5.0}}}, nil
		}
		return cdp.EvalResult{}, nil
	}

	e := &Executor{
		Session:    s,
		Controller: &pagectl.Controller{Session: s, TargetID: "target1"},
	}
	return s, e
}

// Handle lifecycle (§8): every object the executor creates while
// resolving a target is released exactly once, whether the step
// succeeds or fails.
func TestExecClickReleasesHandleOnSuccess(t *testing.T) {
	s, e := newClickable(t)
	step := Step{Index: 0, Action: ActionClick, Params: []byte(`"#submit"`)}

	result := e.Run(context.Background(), step)
	require.Equal(t, "ok", result.Status)

	created, released := s.Counts()
	assert.Equal(t, created, released, "every created object must be released")
	assert.Equal(t, 1, created)
}

func TestExecClickReleasesHandleOnActionabilityFailure(t *testing.T) {
	s := fakecdp.New("target1")
	var objID cdp.ObjectID
	s.EvalFunc = func(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error) {
		if strings.Contains(expression, "queryOne") {
			if objID == "" {
				objID = s.NewObject()
			}
			return cdp.EvalResult{ObjectID: objID}, nil
		}
		return cdp.EvalResult{}, nil
	}
	// Never attached: every predicate check fails, so the wait loop
	// exhausts its timeout without ever reaching the click.
	s.CallFunctionOnFunc = func(ctx context.Context, objectID cdp.ObjectID, fn string, args []any, returnByValue bool) (cdp.EvalResult, error) {
		if strings.Contains(fn, "isAttached") {
			return cdp.EvalResult{Value: false}, nil
		}
		return cdp.EvalResult{}, nil
	}

	e := &Executor{
		Session:            s,
		Controller:         &pagectl.Controller{Session: s, TargetID: "target1"},
		DefaultStepTimeout: 300 * time.Millisecond,
	}
	step := Step{Index: 0, Action: ActionClick, Params: []byte(`{"selector":"#submit","timeout":150}`)}

	result := e.Run(context.Background(), step)
	require.Equal(t, "error", result.Status)
	assert.Equal(t, string(kinds.NotActionable), result.Error.Type)

	created, released := s.Counts()
	assert.Equal(t, created, released, "a failed actionability wait must still release its handle")
	assert.Equal(t, 1, created)
}

// Timeout bound (§8): a step whose predicate never settles must still
// return within its configured timeout plus a small scheduling slack,
// never hang past it.
func TestExecClickTimeoutBound(t *testing.T) {
	s := fakecdp.New("target1")
	var objID cdp.ObjectID
	s.EvalFunc = func(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error) {
		if strings.Contains(expression, "queryOne") {
			if objID == "" {
				objID = s.NewObject()
			}
			return cdp.EvalResult{ObjectID: objID}, nil
		}
		return cdp.EvalResult{}, nil
	}
	s.CallFunctionOnFunc = func(ctx context.Context, objectID cdp.ObjectID, fn string, args []any, returnByValue bool) (cdp.EvalResult, error) {
		return cdp.EvalResult{Value: false}, nil
	}

	e := &Executor{
		Session:    s,
		Controller: &pagectl.Controller{Session: s, TargetID: "target1"},
	}
	const configured = 200 * time.Millisecond
	step := Step{Index: 0, Action: ActionClick, Params: []byte(`{"selector":"#submit","timeout":200}`)}

	start := time.Now()
	result := e.Run(context.Background(), step)
	elapsed := time.Since(start)

	require.Equal(t, "error", result.Status)
	assert.LessOrEqual(t, elapsed, configured+250*time.Millisecond, "step must not run long past its configured timeout")
}

// Optional steps that fail are reported as skipped, not error, per the
// §5 optional-step contract. The selector matches nothing here, so no
// handle is ever created.
func TestExecClickOptionalFailureIsSkipped(t *testing.T) {
	s := fakecdp.New("target1")
	s.EvalFunc = func(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error) {
		return cdp.EvalResult{}, nil
	}
	e := &Executor{
		Session:    s,
		Controller: &pagectl.Controller{Session: s, TargetID: "target1"},
	}
	step := Step{Index: 0, Action: ActionClick, Optional: true, Params: []byte(`{"selector":"#missing","timeout":50}`)}

	result := e.Run(context.Background(), step)
	assert.Equal(t, "skipped", result.Status)
	assert.NotEmpty(t, result.Warning)
	assert.Nil(t, result.Error)
}
