// Params structs for the step contracts §4.5 describes in detail.
// Tagged for github.com/go-playground/validator/v10; the remaining,
// loosely-specified actions are validated by hand in internal/validate
// rather than forced into a struct shape the spec never commits to.
package steps

// GotoParams covers both the bare-string and object forms of goto; the
// validator's decode step normalizes a bare string into URL.
type GotoParams struct {
	URL       string `json:"url" validate:"required,url"`
	WaitUntil string `json:"waitUntil" validate:"omitempty,oneof=commit domcontentloaded load networkidle"`
}

// ClickParams covers every addressing mode click accepts; exactly one
// of Selector/Ref/Text/Selectors/{X,Y} must be set — enforced outside
// the struct tags since validator has no clean "exactly one of N"
// built-in across heterogeneous types.
type ClickParams struct {
	Selector  string   `json:"selector"`
	Ref       string   `json:"ref" validate:"omitempty,ref"`
	Text      string   `json:"text"`
	Selectors []string `json:"selectors" validate:"omitempty,min=1,dive,min=1"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Verify    bool     `json:"verify"`
	Force     bool     `json:"force"`
	Timeout   int      `json:"timeout" validate:"omitempty,min=0"`
}

// FillParams is the fill step contract.
type FillParams struct {
	Selector string `json:"selector"`
	Ref      string `json:"ref" validate:"omitempty,ref"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Clear    bool   `json:"clear"`
	React    bool   `json:"react"`
}

// SnapshotParams is the snapshot step contract.
type SnapshotParams struct {
	Root          string `json:"root"`
	Mode          string `json:"mode" validate:"omitempty,oneof=ai full"`
	Detail        string `json:"detail" validate:"omitempty,oneof=full summary interactive"`
	MaxDepth      int    `json:"maxDepth" validate:"omitempty,min=0"`
	MaxElements   int    `json:"maxElements" validate:"omitempty,min=0"`
	IncludeText   bool   `json:"includeText"`
	IncludeFrames bool   `json:"includeFrames"`
	ViewportOnly  bool   `json:"viewportOnly"`
	PierceShadow  bool   `json:"pierceShadow"`
	PreserveRefs  bool   `json:"preserveRefs"`
	Since         string `json:"since"`
}

// DragEndpoint is one side of a drag: selector, ref (optionally with
// offsets), or absolute coordinates.
type DragEndpoint struct {
	Selector string   `json:"selector"`
	Ref      string   `json:"ref" validate:"omitempty,ref"`
	OffsetX  float64  `json:"offsetX"`
	OffsetY  float64  `json:"offsetY"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
}

// DragParams is the drag step contract.
type DragParams struct {
	Source DragEndpoint `json:"source" validate:"required"`
	Target DragEndpoint `json:"target" validate:"required"`
	Steps  int          `json:"steps" validate:"omitempty,min=1"`
	Delay  int          `json:"delay" validate:"omitempty,min=0"`
	Method string       `json:"method" validate:"omitempty,oneof=auto mouse html5"`
}

// EvalParams is the eval step contract.
type EvalParams struct {
	Expression string `json:"expression" validate:"required"`
	Await      bool   `json:"await"`
	Serialize  *bool  `json:"serialize"`
	Timeout    int    `json:"timeout" validate:"omitempty,min=0"`
}

// PollParams is the poll step contract.
type PollParams struct {
	Fn       string `json:"fn" validate:"required"`
	Interval int    `json:"interval" validate:"omitempty,min=1"`
	Timeout  int    `json:"timeout" validate:"omitempty,min=0"`
}

// CookiesParams is the cookies step contract; exactly one of
// Get/Set/Clear/Delete should be set, checked by hand.
type CookiesParams struct {
	Get    *bool         `json:"get"`
	Set    *CookieValue  `json:"set"`
	Clear  *bool         `json:"clear"`
	Delete *CookieFilter `json:"delete"`
}

type CookieValue struct {
	Name     string `json:"name" validate:"required"`
	Value    string `json:"value"`
	URL      string `json:"url"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  string `json:"expires" validate:"omitempty"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

type CookieFilter struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// ElementsAtParams is the elementsAt step contract.
type ElementsAtParams struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Radius float64  `json:"radius" validate:"omitempty,min=0"`
}

// ScrollParams is the scroll step contract.
type ScrollParams struct {
	Selector    string  `json:"selector"`
	MaxScrolls  int     `json:"maxScrolls" validate:"omitempty,min=1"`
	ScrollAmount float64 `json:"scrollAmount" validate:"omitempty,min=0"`
	Direction   string  `json:"direction" validate:"omitempty,oneof=vertical horizontal"`
}

// ViewportParams is the viewport step contract.
type ViewportParams struct {
	Width  int `json:"width" validate:"required,min=1"`
	Height int `json:"height" validate:"required,min=1"`
}

// PressParams is the press step contract (single key, optional target).
type PressParams struct {
	Key      string `json:"key" validate:"required"`
	Selector string `json:"selector"`
	Ref      string `json:"ref" validate:"omitempty,ref"`
}

// WaitParams covers the wait step's selector/text/timeout shape.
type WaitParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Timeout  int    `json:"timeout" validate:"omitempty,min=0"`
	Visible  bool   `json:"visible"`
}

// SleepParams is a bare millisecond duration.
type SleepParams struct {
	Ms int `json:"ms" validate:"required,min=0"`
}
