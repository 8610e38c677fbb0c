package differ

import (
	"context"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
)

// Context is the §4.7 per-command context capture.
type Context struct {
	URL             string   `json:"url"`
	ScrollY         float64  `json:"scrollY"`
	ActiveElement   string   `json:"activeElement,omitempty"`
	ModalPresent    bool     `json:"modalPresent"`
	VisibleButtons  []string `json:"visibleButtons,omitempty"`
	VisibleLinks    []string `json:"visibleLinks,omitempty"`
	VisibleErrors   []string `json:"visibleErrors,omitempty"`
}

// captureScript reads everything Context needs in one round trip,
// capping each list per §4.7 (buttons/links ≤5, errors ≤3) in-page so
// the wire payload stays small.
const captureScript = `(function(){
	function visible(el) {
		if (!el || !el.isConnected) return false;
		const r = el.getBoundingClientRect();
		if (r.width <= 0 || r.height <= 0) return false;
		const cs = getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden' && parseFloat(cs.opacity || '1') > 0;
	}
	function label(el) {
		return (el.innerText || el.textContent || el.value || el.getAttribute('aria-label') || '').trim().slice(0, 80);
	}
	const active = document.activeElement;
	const activeLabel = (active && active !== document.body) ?
		(active.tagName.toLowerCase() + (active.id ? '#' + active.id : '') + (label(active) ? ' "' + label(active) + '"' : '')) : '';

	const modalSelectors = '[role="dialog"], [role="alertdialog"], dialog[open], .modal.show, .modal.open';
	const modalPresent = Array.from(document.querySelectorAll(modalSelectors)).some(visible);

	const buttons = Array.from(document.querySelectorAll('button, [role="button"], input[type="submit"], input[type="button"]'))
		.filter(visible).slice(0, 5).map(label).filter(Boolean);
	const links = Array.from(document.querySelectorAll('a[href]'))
		.filter(visible).slice(0, 5).map(label).filter(Boolean);
	const errors = Array.from(document.querySelectorAll('[role="alert"], .error, .error-message, [aria-invalid="true"]'))
		.filter(visible).slice(0, 3).map(label).filter(Boolean);

	return {
		url: location.href,
		scrollY: window.scrollY,
		activeElement: activeLabel,
		modalPresent: modalPresent,
		visibleButtons: buttons,
		visibleLinks: links,
		visibleErrors: errors,
	};
})()`

// Capture evaluates captureScript in cx and decodes the result.
func Capture(ctx context.Context, session cdp.Session, cx cdp.ContextID) (Context, error) {
	res, err := session.Eval(ctx, cx, captureScript, nil, true, false)
	if err != nil {
		return Context{}, kinds.Wrap(kinds.EvalError, err)
	}
	m, _ := res.Value.(map[string]any)
	if m == nil {
		return Context{}, nil
	}
	c := Context{
		URL:           str(m["url"]),
		ScrollY:       num(m["scrollY"]),
		ActiveElement: str(m["activeElement"]),
		ModalPresent:  boolOf(m["modalPresent"]),
		VisibleButtons: strs(m["visibleButtons"]),
		VisibleLinks:   strs(m["visibleLinks"]),
		VisibleErrors:  strs(m["visibleErrors"]),
	}
	return c, nil
}

// Navigated reports whether two captured contexts' URLs differ, the
// §4.7 navigation-inference rule the differ uses to skip diffing.
func Navigated(pre, post Context) bool {
	return pre.URL != "" && post.URL != "" && pre.URL != post.URL
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

func strs(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		if s, ok := x.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
