// Package fakecdp is an in-memory test double for cdp.Session. It does
// not embed a JS engine — Runtime.evaluate/callFunctionOn against a
// real page is arbitrary JavaScript, and nothing in this corpus pulls
// in a JS runtime (no goja/otto/v8go dependency anywhere in the
// pack) — so rather than fake one badly, Session exposes the same
// functional-stub-field convention the pack already uses for swappable
// behavior (chromedp's own options.go, agent/runner.go's callback
// fields): each CDP operation has a default, reasonable in-memory
// behavior, and the ones scenarios script (Eval, CallFunctionOn,
// Navigate, GetProperties, DescribeNode, GetNodeForLocation,
// GetBoxModel, and the mouse/key dispatchers) also have an optional
// override func field a test sets to script exactly the page behavior
// its scenario needs. This keeps the fake
// honest about what it is — a scriptable stand-in, not a browser.
package fakecdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
)

// Session is a scriptable fake satisfying cdp.Session.
type Session struct {
	mu sync.Mutex

	target string

	// Page state a default-behavior caller can rely on without any
	// override: URL/Title drive "location.href"/"document.title" reads,
	// Width/Height back SetViewport/GetLayoutMetrics-style queries.
	URL    string
	Title  string
	Width  int
	Height int

	cookies []cdp.Cookie
	console []cdp.ConsoleMessage
	errors  []cdp.PageError
	network []cdp.NetworkEvent

	objects  map[cdp.ObjectID]bool
	nextObj  int
	created  int
	released int

	// EvalFunc, when set, handles Eval calls the built-in
	// location.href/document.title shortcuts don't cover. Most scenario
	// tests set this to recognize the handful of __cdpstep.* calls (or
	// raw assertion expressions) their page under test needs.
	EvalFunc func(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error)

	// CallFunctionOnFunc handles CallFunctionOn; same scripting
	// convention as EvalFunc.
	CallFunctionOnFunc func(ctx context.Context, objectID cdp.ObjectID, functionDeclaration string, args []any, returnByValue bool) (cdp.EvalResult, error)

	// NavigateFunc, when set, lets a test swap in a new "page" (URL,
	// Title, and whatever object graph EvalFunc closes over) on
	// navigation, mirroring how a fake CDP target serves different
	// described pages across the §8 end-to-end scenarios.
	NavigateFunc func(ctx context.Context, url string, wait cdp.NavigationWait, timeout time.Duration) (bool, error)

	GetPropertiesFunc      func(ctx context.Context, objectID cdp.ObjectID) (map[string]any, error)
	DescribeNodeFunc       func(ctx context.Context, nodeID cdp.NodeID) (map[string]any, error)
	GetNodeForLocationFunc func(ctx context.Context, x, y float64) (cdp.NodeID, error)
	GetBoxModelFunc        func(ctx context.Context, objectID cdp.ObjectID) (cdp.Box, error)
	DispatchMouseEventFunc func(ctx context.Context, typ string, p cdp.Point, button cdp.MouseButton, clickCount int) error
	DispatchKeyEventFunc   func(ctx context.Context, typ, key, text string, modifiers int) error
}

// New returns a fake session with empty defaults.
func New(targetID string) *Session {
	return &Session{target: targetID, objects: map[cdp.ObjectID]bool{}}
}

func (s *Session) TargetID() string { return s.target }

// NewObject allocates a fresh tracked object id, the handle-producing
// helper a test's EvalFunc/CallFunctionOnFunc calls when simulating a
// located element.
func (s *Session) NewObject() cdp.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObj++
	s.created++
	id := cdp.ObjectID(fmt.Sprintf("obj%d", s.nextObj))
	s.objects[id] = true
	return id
}

// Counts returns (created, released) object-id totals since the last
// Reset, the instrumentation the Handle lifecycle property test (§8)
// checks equality on.
func (s *Session) Counts() (created, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, s.released
}

// Reset zeroes the object-lifecycle counters without disturbing page
// state, so a test can isolate counts to one step.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created, s.released = 0, 0
}

// Live reports whether objectID has not yet been released.
func (s *Session) Live(id cdp.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[id]
}

func (s *Session) Eval(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error) {
	switch expression {
	case "location.href":
		return cdp.EvalResult{Value: s.URL}, nil
	case "document.title":
		return cdp.EvalResult{Value: s.Title}, nil
	case "document.readyState":
		return cdp.EvalResult{Value: "complete"}, nil
	}
	if s.EvalFunc != nil {
		return s.EvalFunc(ctx, cx, expression, args, returnByValue, awaitPromise)
	}
	return cdp.EvalResult{}, fmt.Errorf("fakecdp: unscripted eval: %s", truncate(expression))
}

func (s *Session) CallFunctionOn(ctx context.Context, objectID cdp.ObjectID, functionDeclaration string, args []any, returnByValue bool) (cdp.EvalResult, error) {
	if s.CallFunctionOnFunc != nil {
		return s.CallFunctionOnFunc(ctx, objectID, functionDeclaration, args, returnByValue)
	}
	return cdp.EvalResult{}, fmt.Errorf("fakecdp: unscripted callFunctionOn: %s", truncate(functionDeclaration))
}

func (s *Session) GetProperties(ctx context.Context, objectID cdp.ObjectID) (map[string]any, error) {
	if s.GetPropertiesFunc != nil {
		return s.GetPropertiesFunc(ctx, objectID)
	}
	return map[string]any{}, nil
}

func (s *Session) ReleaseObject(ctx context.Context, objectID cdp.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[objectID] {
		delete(s.objects, objectID)
	}
	s.released++
	return nil
}

func (s *Session) DescribeNode(ctx context.Context, nodeID cdp.NodeID) (map[string]any, error) {
	if s.DescribeNodeFunc != nil {
		return s.DescribeNodeFunc(ctx, nodeID)
	}
	return map[string]any{}, nil
}

func (s *Session) GetNodeForLocation(ctx context.Context, x, y float64) (cdp.NodeID, error) {
	if s.GetNodeForLocationFunc != nil {
		return s.GetNodeForLocationFunc(ctx, x, y)
	}
	return 0, nil
}

func (s *Session) GetBoxModel(ctx context.Context, objectID cdp.ObjectID) (cdp.Box, error) {
	if s.GetBoxModelFunc != nil {
		return s.GetBoxModelFunc(ctx, objectID)
	}
	return cdp.Box{}, nil
}

func (s *Session) DispatchMouseEvent(ctx context.Context, typ string, p cdp.Point, button cdp.MouseButton, clickCount int) error {
	if s.DispatchMouseEventFunc != nil {
		return s.DispatchMouseEventFunc(ctx, typ, p, button, clickCount)
	}
	return nil
}

func (s *Session) DispatchKeyEvent(ctx context.Context, typ, key, text string, modifiers int) error {
	if s.DispatchKeyEventFunc != nil {
		return s.DispatchKeyEventFunc(ctx, typ, key, text, modifiers)
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string, wait cdp.NavigationWait, timeout time.Duration) (bool, error) {
	if s.NavigateFunc != nil {
		return s.NavigateFunc(ctx, url, wait, timeout)
	}
	s.mu.Lock()
	s.URL = url
	s.mu.Unlock()
	return true, nil
}

func (s *Session) Reload(ctx context.Context, wait cdp.NavigationWait, timeout time.Duration) error {
	return nil
}

func (s *Session) GoBack(ctx context.Context) error    { return nil }
func (s *Session) GoForward(ctx context.Context) error  { return nil }

func (s *Session) CurrentFrame(ctx context.Context) (cdp.FrameContext, error) {
	return cdp.FrameContext{ExecutionContextID: 1}, nil
}

func (s *Session) SetViewport(ctx context.Context, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Width, s.Height = width, height
	return nil
}

func (s *Session) CaptureScreenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return []byte{}, nil
}

func (s *Session) PrintToPDF(ctx context.Context) ([]byte, error) {
	return []byte("%PDF-1.4 fake"), nil
}

func (s *Session) EnableNetwork(ctx context.Context) error { return nil }

func (s *Session) DrainConsole(ctx context.Context) ([]cdp.ConsoleMessage, []cdp.PageError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, errs := s.console, s.errors
	s.console, s.errors = nil, nil
	return msgs, errs, nil
}

// PushConsole lets a test simulate console activity between steps.
func (s *Session) PushConsole(m cdp.ConsoleMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, m)
}

func (s *Session) DrainNetwork(ctx context.Context) ([]cdp.NetworkEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.network
	s.network = nil
	return ev, nil
}

func (s *Session) Cookies(ctx context.Context, urlFilter string) ([]cdp.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if urlFilter == "" {
		out := make([]cdp.Cookie, len(s.cookies))
		copy(out, s.cookies)
		return out, nil
	}
	var out []cdp.Cookie
	for _, c := range s.cookies {
		if c.URL == urlFilter || c.Domain == "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Session) SetCookie(ctx context.Context, c cdp.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.cookies {
		if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
			s.cookies[i] = c
			return nil
		}
	}
	s.cookies = append(s.cookies, c)
	return nil
}

func (s *Session) ClearCookies(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = nil
	return nil
}

func (s *Session) DeleteCookie(ctx context.Context, name, domain, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.cookies[:0]
	for _, c := range s.cookies {
		if c.Name == name && c.Domain == domain && c.Path == path {
			continue
		}
		out = append(out, c)
	}
	s.cookies = out
	return nil
}

func (s *Session) Close() error { return nil }

func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
