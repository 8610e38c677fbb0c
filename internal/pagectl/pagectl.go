// Package pagectl implements the Page Controller: frame context
// tracking, navigation, history, and viewport control. Grounded on the
// reference repo's Session/Page types (internal/browser/session.go)
// and actions.go's Navigate, reshaped from a Playwright-backed page
// object onto the narrow cdp.Session contract, with frame context
// persisted across invocations via internal/framestate per §6.3.
package pagectl

import (
	"context"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/framestate"
	"github.com/cdpstep/cdpstep/internal/kinds"
)

// Controller owns the "current frame context" for one target (§3 Frame
// Context) and the navigation/viewport operations that mutate it.
type Controller struct {
	Session  cdp.Session
	TargetID string
	Frames   *framestate.Store
}

// CurrentContext returns the execution context later steps should
// evaluate in: the persisted frame context if still fresh, otherwise
// freshly queried from the live page.
func (c *Controller) CurrentContext(ctx context.Context) (cdp.ContextID, error) {
	if c.Frames != nil {
		if e, ok := c.Frames.Get(c.TargetID, time.Now()); ok {
			return cdp.ContextID(e.ExecutionContextID), nil
		}
	}
	fc, err := c.Session.CurrentFrame(ctx)
	if err != nil {
		return 0, err
	}
	if c.Frames != nil {
		_ = c.Frames.Put(c.TargetID, fc.FrameID, int64(fc.ExecutionContextID), time.Now())
	}
	return fc.ExecutionContextID, nil
}

// Goto navigates to url and waits per wait, defaulting to WaitLoad.
// Page unload destroys the in-page ref maps implicitly — there is
// nothing for the controller to clear itself — but the persisted
// frame context is stale the instant navigation starts, so it is
// cleared unconditionally rather than left to expire on its own.
func (c *Controller) Goto(ctx context.Context, url string, wait cdp.NavigationWait, timeout time.Duration) (bool, error) {
	if wait == "" {
		wait = cdp.WaitLoad
	}
	if c.Frames != nil {
		_ = c.Frames.Clear(c.TargetID)
	}
	navigated, err := c.Session.Navigate(ctx, url, wait, timeout)
	if err != nil {
		return navigated, kinds.Wrap(kinds.NavigationError, err)
	}
	return navigated, nil
}

// Reload reloads the current document, waiting per wait.
func (c *Controller) Reload(ctx context.Context, wait cdp.NavigationWait, timeout time.Duration) error {
	if c.Frames != nil {
		_ = c.Frames.Clear(c.TargetID)
	}
	if err := c.Session.Reload(ctx, wait, timeout); err != nil {
		return kinds.Wrap(kinds.NavigationError, err)
	}
	return nil
}

// Back / Forward replay session history. Both clear the persisted
// frame context for the same reason Goto does.
func (c *Controller) Back(ctx context.Context) error {
	if c.Frames != nil {
		_ = c.Frames.Clear(c.TargetID)
	}
	if err := c.Session.GoBack(ctx); err != nil {
		return kinds.Wrap(kinds.NavigationError, err)
	}
	return nil
}

func (c *Controller) Forward(ctx context.Context) error {
	if c.Frames != nil {
		_ = c.Frames.Clear(c.TargetID)
	}
	if err := c.Session.GoForward(ctx); err != nil {
		return kinds.Wrap(kinds.NavigationError, err)
	}
	return nil
}

// SetViewport sets the emulated viewport size.
func (c *Controller) SetViewport(ctx context.Context, width, height int) error {
	if width <= 0 || height <= 0 {
		return kinds.Wrap(kinds.Validation, errInvalidViewport(width, height))
	}
	return c.Session.SetViewport(ctx, width, height)
}

type viewportError struct {
	width, height int
}

func (e *viewportError) Error() string {
	return "invalid viewport dimensions"
}

func errInvalidViewport(w, h int) error {
	return &viewportError{width: w, height: h}
}

// WaitForNavigation blocks until a navigation reaches wait, bounded by
// timeout. The fake/real session's Navigate already performs this wait
// when issuing a navigation; this entry point supports steps that
// expect a navigation to be already in flight (e.g. triggered by a
// prior click on a link) by polling the document ready state.
func (c *Controller) WaitForNavigation(ctx context.Context, wait cdp.NavigationWait, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	cx, err := c.CurrentContext(ctx)
	if err != nil {
		return kinds.Wrap(kinds.NavigationError, err)
	}
	target := "complete"
	if wait == cdp.WaitDOMContentLoaded {
		target = "interactive"
	}
	for {
		res, err := c.Session.Eval(ctx, cx, "document.readyState", nil, true, false)
		if err == nil {
			if state, _ := res.Value.(string); state == target || state == "complete" {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return kinds.Wrap(kinds.NavigationError, errNavigationTimeout)
		}
		select {
		case <-ctx.Done():
			return kinds.Wrap(kinds.Timeout, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

var errNavigationTimeout = navTimeoutErr{}

type navTimeoutErr struct{}

func (navTimeoutErr) Error() string { return "navigation did not reach requested state in time" }
