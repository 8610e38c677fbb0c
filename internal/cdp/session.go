// Package cdp defines the narrow interface the core execution engine
// uses to talk to a live browser target over the Chrome DevTools
// Protocol. Transport (WebSocket framing, target discovery, session
// multiplexing) is deliberately not this package's concern — it is
// satisfied by an adapter (chromedpsession for production, fakecdp for
// tests) built on top of a real CDP client.
package cdp

import (
	"context"
	"time"
)

// ObjectID is a CDP Runtime.RemoteObjectId: an opaque handle to a JS
// value or DOM node living in a specific execution context.
type ObjectID string

// NodeID is a CDP DOM.NodeId, valid only while the DOM document it was
// issued against is alive.
type NodeID int64

// ContextID is a CDP Runtime.ExecutionContextId, scoped to one frame.
type ContextID int64

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Box is an element's border-box rectangle in viewport coordinates.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Center returns the box's midpoint, the conventional click target.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// EvalResult is the outcome of a Runtime.evaluate / callFunctionOn call.
type EvalResult struct {
	// Value holds the decoded JSON value when returnByValue was used.
	Value any
	// ObjectID is set instead of Value when the caller wants a handle
	// back (e.g. a located DOM node) rather than a serialized value.
	ObjectID ObjectID
	// ExceptionText is non-empty if the page threw during evaluation.
	ExceptionText string
}

// ConsoleMessage is a captured Runtime.consoleAPICalled event.
type ConsoleMessage struct {
	Type      string // "log", "warning", "error", ...
	Text      string
	Timestamp time.Time
}

// PageError is a captured Runtime.exceptionThrown event.
type PageError struct {
	Message   string
	Timestamp time.Time
}

// NetworkEvent is a captured Network.* lifecycle event, used by the
// networkidle quiescence heuristic (see chromedpsession's
// waitNetworkIdle).
type NetworkEvent struct {
	RequestID string
	Kind      string // "sent", "received", "finished", "failed"
	At        time.Time
}

// NavigationWait describes what Page.navigate should wait for before
// returning, per the goto step's waitUntil parameter.
type NavigationWait string

const (
	WaitCommit            NavigationWait = "commit"
	WaitDOMContentLoaded   NavigationWait = "domcontentloaded"
	WaitLoad               NavigationWait = "load"
	WaitNetworkIdle        NavigationWait = "networkidle"
)

// MouseButton is a CDP Input.dispatchMouseEvent button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
	ButtonNone   MouseButton = "none"
)

// Session is the narrow contract the execution engine consumes from a
// CDP connection scoped to exactly one tab/target. Every method is a
// suspension point (§5): the caller is expected to race it against a
// deadline and treat cancellation as "discard the result."
type Session interface {
	// TargetID identifies the tab this session is attached to.
	TargetID() string

	// Eval evaluates expression in the given frame context and returns
	// either a decoded value or an object handle, per returnByValue.
	Eval(ctx context.Context, cx ContextID, expression string, args []any, returnByValue, awaitPromise bool) (EvalResult, error)

	// CallFunctionOn invokes functionDeclaration with objectID as `this`.
	CallFunctionOn(ctx context.Context, objectID ObjectID, functionDeclaration string, args []any, returnByValue bool) (EvalResult, error)

	// GetProperties reads the enumerable own properties of a remote object.
	GetProperties(ctx context.Context, objectID ObjectID) (map[string]any, error)

	// ReleaseObject frees a remote object handle. Every ObjectID an
	// executor creates must be released exactly once (§8 handle
	// lifecycle invariant).
	ReleaseObject(ctx context.Context, objectID ObjectID) error

	// DescribeNode returns a JSON description of a DOM node (tag, attrs,
	// shadow root presence). The resolver and locator do not call it;
	// they work through the in-page script.
	DescribeNode(ctx context.Context, nodeID NodeID) (map[string]any, error)

	// GetNodeForLocation resolves the topmost node at a viewport point.
	// The hittable predicate and CheckCovered do not call it; they test
	// the point in-page with elementFromPoint.
	GetNodeForLocation(ctx context.Context, x, y float64) (NodeID, error)

	// GetBoxModel returns the content-box rectangle of a node.
	GetBoxModel(ctx context.Context, objectID ObjectID) (Box, error)

	// DispatchMouseEvent sends a synthesized mouse event at a point.
	DispatchMouseEvent(ctx context.Context, typ string, p Point, button MouseButton, clickCount int) error

	// DispatchKeyEvent sends a synthesized key event.
	DispatchKeyEvent(ctx context.Context, typ, key, text string, modifiers int) error

	// Navigate issues Page.navigate and waits per wait.
	Navigate(ctx context.Context, url string, wait NavigationWait, timeout time.Duration) (navigated bool, err error)

	// Reload reloads the current document.
	Reload(ctx context.Context, wait NavigationWait, timeout time.Duration) error

	// GoBack / GoForward replay session history.
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error

	// CurrentFrame returns the currently selected frame's context.
	CurrentFrame(ctx context.Context) (FrameContext, error)

	// SetViewport sets the emulated viewport size.
	SetViewport(ctx context.Context, width, height int) error

	// CaptureScreenshot returns PNG bytes of the viewport or full page.
	CaptureScreenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// PrintToPDF renders the page to PDF bytes.
	PrintToPDF(ctx context.Context) ([]byte, error)

	// EnableNetwork turns on Network domain events (for networkidle / console capture).
	EnableNetwork(ctx context.Context) error

	// DrainConsole returns and clears buffered console messages/errors
	// captured since the last drain.
	DrainConsole(ctx context.Context) ([]ConsoleMessage, []PageError, error)

	// DrainNetwork returns and clears buffered network lifecycle events.
	DrainNetwork(ctx context.Context) ([]NetworkEvent, error)

	// Cookies/SetCookie/ClearCookies/DeleteCookies manage the Network
	// domain's cookie jar for the session's browser context.
	Cookies(ctx context.Context, urlFilter string) ([]Cookie, error)
	SetCookie(ctx context.Context, c Cookie) error
	ClearCookies(ctx context.Context) error
	DeleteCookie(ctx context.Context, name, domain, path string) error

	// Close releases the session's resources. It does not close the tab.
	Close() error
}

// FrameContext identifies the frame an evaluation or query targets.
type FrameContext struct {
	FrameID           string
	ExecutionContextID ContextID
	ParentFrameID     string
}

// Cookie mirrors the wire shape of a CDP Network.Cookie, trimmed to
// the fields the cookies step needs.
type Cookie struct {
	Name     string
	Value    string
	URL      string
	Domain   string
	Path     string
	Expires  float64
	HTTPOnly bool
	Secure   bool
	SameSite string
}
