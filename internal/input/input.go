// Package input implements the Input Emulator: dispatching synthesized
// mouse/keyboard events at coordinates via the CDP Input domain.
// Grounded on agent/tools/browser.go's chromedp.MouseClickXY / key
// dispatch usage, generalized to the narrow cdp.Session contract so it
// has no direct chromedp dependency.
package input

import (
	"context"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
)

// Click dispatches a full press+release at p. count controls
// click-count (2 for double-click).
func Click(ctx context.Context, session cdp.Session, p cdp.Point, button cdp.MouseButton, count int) error {
	if button == "" {
		button = cdp.ButtonLeft
	}
	if count == 0 {
		count = 1
	}
	if err := session.DispatchMouseEvent(ctx, "mouseMoved", p, cdp.ButtonNone, 0); err != nil {
		return err
	}
	if err := session.DispatchMouseEvent(ctx, "mousePressed", p, button, count); err != nil {
		return err
	}
	return session.DispatchMouseEvent(ctx, "mouseReleased", p, button, count)
}

// Hover moves the mouse to p without pressing a button.
func Hover(ctx context.Context, session cdp.Session, p cdp.Point) error {
	return session.DispatchMouseEvent(ctx, "mouseMoved", p, cdp.ButtonNone, 0)
}

// MouseSequence dispatches a mousedown, a number of intermediate
// mousemoves, then a mouseup — the §4.5 drag auto "JS-dispatched
// mouse-event sequence" path.
func MouseSequence(ctx context.Context, session cdp.Session, from, to cdp.Point, steps int, delay time.Duration) error {
	if steps <= 0 {
		steps = 1
	}
	if err := session.DispatchMouseEvent(ctx, "mouseMoved", from, cdp.ButtonNone, 0); err != nil {
		return err
	}
	if err := session.DispatchMouseEvent(ctx, "mousePressed", from, cdp.ButtonLeft, 1); err != nil {
		return err
	}
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		p := cdp.Point{X: from.X + (to.X-from.X)*frac, Y: from.Y + (to.Y-from.Y)*frac}
		if err := session.DispatchMouseEvent(ctx, "mouseMoved", p, cdp.ButtonLeft, 0); err != nil {
			return err
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return session.DispatchMouseEvent(ctx, "mouseReleased", to, cdp.ButtonLeft, 1)
}

// ResetButtons releases any left/right/middle button the emulator may
// have left pressed after a failed interaction, so the next invocation
// does not inherit stuck input state (§5, §7 cleanup guarantee).
func ResetButtons(ctx context.Context, session cdp.Session, at cdp.Point) {
	for _, b := range []cdp.MouseButton{cdp.ButtonLeft, cdp.ButtonRight, cdp.ButtonMiddle} {
		_ = session.DispatchMouseEvent(ctx, "mouseReleased", at, b, 0)
	}
}

// Key types a single character or named key (e.g. "Enter", "Backspace").
func Key(ctx context.Context, session cdp.Session, key, text string) error {
	if err := session.DispatchKeyEvent(ctx, "keyDown", key, text, 0); err != nil {
		return err
	}
	if text != "" {
		if err := session.DispatchKeyEvent(ctx, "char", key, text, 0); err != nil {
			return err
		}
	}
	return session.DispatchKeyEvent(ctx, "keyUp", key, text, 0)
}

// Type dispatches one keyDown/char/keyUp triplet per rune in s.
func Type(ctx context.Context, session cdp.Session, s string) error {
	for _, r := range s {
		if err := Key(ctx, session, string(r), string(r)); err != nil {
			return err
		}
	}
	return nil
}

// SelectAll sends the platform "select all" chord (Ctrl+A / Cmd+A).
// The modifier bit layout matches CDP's Input.dispatchKeyEvent
// (Alt=1, Ctrl=2, Meta=4, Shift=8); ctrl is used uniformly since the
// fake and headless Linux/Windows targets this runtime drives don't
// need the macOS Cmd variant distinguished.
func SelectAll(ctx context.Context, session cdp.Session) error {
	const ctrlModifier = 2
	if err := session.DispatchKeyEvent(ctx, "keyDown", "a", "", ctrlModifier); err != nil {
		return err
	}
	return session.DispatchKeyEvent(ctx, "keyUp", "a", "", ctrlModifier)
}

// Delete sends a single Delete keypress (no char event — it produces
// no text).
func Delete(ctx context.Context, session cdp.Session) error {
	if err := session.DispatchKeyEvent(ctx, "keyDown", "Delete", "", 0); err != nil {
		return err
	}
	return session.DispatchKeyEvent(ctx, "keyUp", "Delete", "", 0)
}
