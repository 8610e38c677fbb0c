// Package chromedpsession adapts github.com/chromedp/chromedp and
// github.com/chromedp/cdproto to the cdp.Session interface. It is the
// production CDP transport the core engine is handed — target
// discovery, WebSocket framing, and session multiplexing are entirely
// chromedp's concern, consistent with the engine treating CDP
// transport as an external collaborator (see DESIGN.md).
package chromedpsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	ourcdp "github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/logging"
)

// Session wraps one chromedp browser context (one tab/target).
type Session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID string

	mu             sync.Mutex
	consoleBuf     []ourcdp.ConsoleMessage
	errorBuf       []ourcdp.PageError
	networkBuf     []ourcdp.NetworkEvent
	networkEnabled bool
}

// Attach creates a session against an existing allocator context,
// opening (or reusing) a tab. targetID, when non-empty, attaches to an
// already-open tab instead of creating a new one.
func Attach(parent context.Context, targetID string) (*Session, error) {
	var opts []chromedp.ContextOption
	if targetID != "" {
		opts = append(opts, chromedp.WithTargetID(cdp.TargetID(targetID)))
	}
	ctx, cancel := chromedp.NewContext(parent, opts...)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("attach target: %w", err)
	}

	s := &Session{ctx: ctx, cancel: cancel}
	s.targetID = string(chromedp.FromContext(ctx).Target.TargetID)

	chromedp.ListenTarget(ctx, s.onEvent)
	return s, nil
}

func (s *Session) onEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		text := ""
		for _, a := range e.Args {
			if a.Value != nil {
				text += string(a.Value) + " "
			}
		}
		s.mu.Lock()
		s.consoleBuf = append(s.consoleBuf, ourcdp.ConsoleMessage{
			Type: string(e.Type), Text: text, Timestamp: time.Now(),
		})
		s.mu.Unlock()
	case *runtime.EventExceptionThrown:
		msg := ""
		if e.ExceptionDetails != nil {
			msg = e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				msg = e.ExceptionDetails.Exception.Description
			}
		}
		s.mu.Lock()
		s.errorBuf = append(s.errorBuf, ourcdp.PageError{Message: msg, Timestamp: time.Now()})
		s.mu.Unlock()
	case *network.EventRequestWillBeSent:
		s.recordNetwork(string(e.RequestID), "sent")
	case *network.EventResponseReceived:
		s.recordNetwork(string(e.RequestID), "received")
	case *network.EventLoadingFinished:
		s.recordNetwork(string(e.RequestID), "finished")
	case *network.EventLoadingFailed:
		s.recordNetwork(string(e.RequestID), "failed")
	}
}

func (s *Session) recordNetwork(id, kind string) {
	s.mu.Lock()
	s.networkBuf = append(s.networkBuf, ourcdp.NetworkEvent{RequestID: id, Kind: kind, At: time.Now()})
	s.mu.Unlock()
}

func (s *Session) TargetID() string { return s.targetID }

func (s *Session) Eval(ctx context.Context, cxID ourcdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (ourcdp.EvalResult, error) {
	var res ourcdp.EvalResult
	action := runtime.Evaluate(wrapArgs(expression, args)).
		WithReturnByValue(returnByValue).
		WithAwaitPromise(awaitPromise)
	if cxID != 0 {
		action = action.WithContextID(runtime.ExecutionContextID(cxID))
	}

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		remote, exc, err := action.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			res.ExceptionText = exc.Text
			if exc.Exception != nil && exc.Exception.Description != "" {
				res.ExceptionText = exc.Exception.Description
			}
			return nil
		}
		if remote == nil {
			return nil
		}
		if returnByValue {
			res.Value = decodeRemote(remote)
		} else {
			res.ObjectID = ourcdp.ObjectID(remote.ObjectID)
		}
		return nil
	}))
	return res, err
}

func (s *Session) CallFunctionOn(ctx context.Context, objectID ourcdp.ObjectID, functionDeclaration string, args []any, returnByValue bool) (ourcdp.EvalResult, error) {
	var res ourcdp.EvalResult
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		callArgs = append(callArgs, argFor(a))
	}

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		remote, exc, err := runtime.CallFunctionOn(functionDeclaration).
			WithObjectID(runtime.RemoteObjectID(objectID)).
			WithArguments(callArgs).
			WithReturnByValue(returnByValue).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			res.ExceptionText = exc.Text
			return nil
		}
		if remote == nil {
			return nil
		}
		if returnByValue {
			res.Value = decodeRemote(remote)
		} else {
			res.ObjectID = ourcdp.ObjectID(remote.ObjectID)
		}
		return nil
	}))
	return res, err
}

func (s *Session) GetProperties(ctx context.Context, objectID ourcdp.ObjectID) (map[string]any, error) {
	out := map[string]any{}
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		props, _, _, _, err := runtime.GetProperties(runtime.RemoteObjectID(objectID)).Do(ctx)
		if err != nil {
			return err
		}
		for _, p := range props {
			if p.Value != nil {
				out[p.Name] = decodeRemote(p.Value)
			}
		}
		return nil
	}))
	return out, err
}

func (s *Session) ReleaseObject(ctx context.Context, objectID ourcdp.ObjectID) error {
	if objectID == "" {
		return nil
	}
	return chromedp.Run(ctx, runtime.ReleaseObject(runtime.RemoteObjectID(objectID)))
}

func (s *Session) DescribeNode(ctx context.Context, nodeID ourcdp.NodeID) (map[string]any, error) {
	var out map[string]any
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.DescribeNode().WithNodeID(cdp.NodeID(nodeID)).Do(ctx)
		if err != nil {
			return err
		}
		out = map[string]any{
			"nodeName":  node.NodeName,
			"attrs":     node.Attributes,
			"shadowRoot": len(node.ShadowRoots) > 0,
		}
		return nil
	}))
	return out, err
}

func (s *Session) GetNodeForLocation(ctx context.Context, x, y float64) (ourcdp.NodeID, error) {
	var nodeID ourcdp.NodeID
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, id, err := dom.GetNodeForLocation(int64(x), int64(y)).Do(ctx)
		nodeID = ourcdp.NodeID(id)
		return err
	}))
	return nodeID, err
}

func (s *Session) GetBoxModel(ctx context.Context, objectID ourcdp.ObjectID) (ourcdp.Box, error) {
	var box ourcdp.Box
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		model, err := dom.GetBoxModel().WithObjectID(runtime.RemoteObjectID(objectID)).Do(ctx)
		if err != nil {
			return err
		}
		if len(model.Content) < 8 {
			return fmt.Errorf("empty box model")
		}
		minX, minY := model.Content[0], model.Content[1]
		maxX, maxY := minX, minY
		for i := 0; i < 8; i += 2 {
			if model.Content[i] < minX {
				minX = model.Content[i]
			}
			if model.Content[i] > maxX {
				maxX = model.Content[i]
			}
			if model.Content[i+1] < minY {
				minY = model.Content[i+1]
			}
			if model.Content[i+1] > maxY {
				maxY = model.Content[i+1]
			}
		}
		box = ourcdp.Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
		return nil
	}))
	return box, err
}

func (s *Session) DispatchMouseEvent(ctx context.Context, typ string, p ourcdp.Point, button ourcdp.MouseButton, clickCount int) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		ev := input.DispatchMouseEvent(input.MouseType(typ), p.X, p.Y).
			WithButton(input.MouseButton(button)).
			WithClickCount(int64(clickCount))
		return ev.Do(ctx)
	}))
}

func (s *Session) DispatchKeyEvent(ctx context.Context, typ, key, text string, modifiers int) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		ev := input.DispatchKeyEvent(input.KeyType(typ)).
			WithKey(key).
			WithText(text).
			WithModifiers(input.Modifier(modifiers))
		return ev.Do(ctx)
	}))
}

func (s *Session) Navigate(ctx context.Context, url string, wait ourcdp.NavigationWait, timeout time.Duration) (bool, error) {
	navCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		navCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if wait == ourcdp.WaitNetworkIdle {
		if err := s.EnableNetwork(navCtx); err != nil {
			return false, kindNavigationError(err)
		}
	}

	var navigated bool
	err := chromedp.Run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		navigated = true
		switch wait {
		case ourcdp.WaitDOMContentLoaded:
			return chromedp.WaitReady("body").Do(ctx)
		case ourcdp.WaitNetworkIdle:
			return waitNetworkIdle(ctx, s)
		case ourcdp.WaitCommit:
			return nil
		default: // WaitLoad and unset default to load per spec
			return chromedp.WaitReady("body").Do(ctx)
		}
	}))
	if err != nil {
		return navigated, kindNavigationError(err)
	}
	return navigated, nil
}

// waitNetworkIdle implements the chosen networkidle heuristic (see
// DESIGN.md Open Question decisions): no in-flight requests for a
// 500ms quiet window.
func waitNetworkIdle(ctx context.Context, s *Session) error {
	const quiet = 500 * time.Millisecond
	deadline := time.Now().Add(quiet)
	for {
		inFlight := s.inFlightRequests()
		if inFlight == 0 && time.Now().After(deadline) {
			return nil
		}
		if inFlight > 0 {
			deadline = time.Now().Add(quiet)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *Session) inFlightRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := map[string]bool{}
	for _, e := range s.networkBuf {
		switch e.Kind {
		case "sent":
			started[e.RequestID] = true
		case "finished", "failed":
			delete(started, e.RequestID)
		}
	}
	return len(started)
}

func kindNavigationError(err error) error {
	return fmt.Errorf("navigation_error: %w", err)
}

func (s *Session) Reload(ctx context.Context, wait ourcdp.NavigationWait, timeout time.Duration) error {
	_, err := s.Navigate(ctx, "", wait, timeout)
	if err == nil {
		return nil
	}
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Reload().Do(ctx)
	}))
}

func (s *Session) GoBack(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		hist, cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		if cur <= 0 || int(cur) >= len(entries) {
			return fmt.Errorf("no back history")
		}
		_ = hist
		return page.NavigateToHistoryEntry(entries[cur-1].ID).Do(ctx)
	}))
}

func (s *Session) GoForward(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		if int(cur)+1 >= len(entries) {
			return fmt.Errorf("no forward history")
		}
		return page.NavigateToHistoryEntry(entries[cur+1].ID).Do(ctx)
	}))
}

func (s *Session) CurrentFrame(ctx context.Context) (ourcdp.FrameContext, error) {
	var fc ourcdp.FrameContext
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		frameTree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		fc.FrameID = string(frameTree.Frame.ID)
		if frameTree.Frame.ParentID != "" {
			fc.ParentFrameID = string(frameTree.Frame.ParentID)
		}
		return nil
	}))
	return fc, err
}

func (s *Session) SetViewport(ctx context.Context, width, height int) error {
	return chromedp.Run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (s *Session) CaptureScreenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var err error
	if fullPage {
		err = chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 100))
	} else {
		err = chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf))
	}
	return buf, err
}

func (s *Session) PrintToPDF(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().Do(ctx)
		buf = data
		return err
	}))
	return buf, err
}

func (s *Session) EnableNetwork(ctx context.Context) error {
	s.mu.Lock()
	already := s.networkEnabled
	s.networkEnabled = true
	s.mu.Unlock()
	if already {
		return nil
	}
	return chromedp.Run(ctx, network.Enable())
}

func (s *Session) DrainConsole(ctx context.Context) ([]ourcdp.ConsoleMessage, []ourcdp.PageError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, e := s.consoleBuf, s.errorBuf
	s.consoleBuf, s.errorBuf = nil, nil
	return c, e, nil
}

func (s *Session) DrainNetwork(ctx context.Context) ([]ourcdp.NetworkEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.networkBuf
	s.networkBuf = nil
	return n, nil
}

func (s *Session) Cookies(ctx context.Context, urlFilter string) ([]ourcdp.Cookie, error) {
	var out []ourcdp.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		action := network.GetCookies()
		if urlFilter != "" {
			action = action.WithUrls([]string{urlFilter})
		}
		cookies, err := action.Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, ourcdp.Cookie{
				Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
				Expires: float64(c.Expires), HTTPOnly: c.HTTPOnly, Secure: c.Secure,
				SameSite: string(c.SameSite),
			})
		}
		return nil
	}))
	return out, err
}

func (s *Session) SetCookie(ctx context.Context, c ourcdp.Cookie) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.SetCookie(c.Name, c.Value)
		if c.URL != "" {
			params = params.WithURL(c.URL)
		}
		if c.Domain != "" {
			params = params.WithDomain(c.Domain)
		}
		if c.Path != "" {
			params = params.WithPath(c.Path)
		}
		if c.Expires > 0 {
			params = params.WithExpires(network.TimeSinceEpoch(c.Expires))
		}
		params = params.WithHTTPOnly(c.HTTPOnly).WithSecure(c.Secure)
		ok, err := params.Do(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("set cookie rejected")
		}
		return nil
	}))
}

func (s *Session) ClearCookies(ctx context.Context) error {
	return chromedp.Run(ctx, network.ClearBrowserCookies())
}

func (s *Session) DeleteCookie(ctx context.Context, name, domain, path string) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.DeleteCookies(name)
		if domain != "" {
			params = params.WithDomain(domain)
		}
		if path != "" {
			params = params.WithPath(path)
		}
		return params.Do(ctx)
	}))
}

func (s *Session) Close() error {
	logging.Debugf("closing cdp session for target %s", s.targetID)
	s.cancel()
	return nil
}

func wrapArgs(expression string, args []any) string {
	if len(args) == 0 {
		return expression
	}
	// Arguments are passed by evaluating a wrapper that reads a fixed
	// `arguments` array rather than interpolating values into source —
	// see the design notes on never building scripts via string
	// concatenation of untrusted values.
	return fmt.Sprintf("(function(){ const arguments_ = %s; return (%s); }).call(null)", encodeArgs(args), expression)
}

func encodeArgs(args []any) string {
	// Best effort JSON-ish encoding; callers pass plain JSON-safe values.
	b, err := jsonMarshal(args)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func argFor(v any) *runtime.CallArgument {
	if id, ok := v.(ourcdp.ObjectID); ok {
		return &runtime.CallArgument{ObjectID: runtime.RemoteObjectID(id)}
	}
	b, err := jsonMarshal(v)
	if err != nil {
		return &runtime.CallArgument{}
	}
	raw := rawJSON(b)
	return &runtime.CallArgument{Value: raw}
}

func decodeRemote(obj *runtime.RemoteObject) any {
	if obj == nil || len(obj.Value) == 0 {
		if obj != nil && obj.Description != "" {
			return obj.Description
		}
		return nil
	}
	var v any
	if err := jsonUnmarshal(obj.Value, &v); err != nil {
		return string(obj.Value)
	}
	return v
}
