package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
)

func parseWaitUntil(s string) cdp.NavigationWait {
	switch s {
	case "commit":
		return cdp.WaitCommit
	case "domcontentloaded":
		return cdp.WaitDOMContentLoaded
	case "networkidle":
		return cdp.WaitNetworkIdle
	default:
		return cdp.WaitLoad
	}
}

// execGoto implements the goto contract: bare-string URL or
// {url, waitUntil}. Navigation destroys the in-page ref maps
// implicitly — nothing here clears them directly.
func (e *Executor) execGoto(ctx context.Context, step Step) (any, string, error) {
	var p GotoParams
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.URL = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}

	deadline, ok := ctx.Deadline()
	timeout := 30 * time.Second
	if ok {
		timeout = time.Until(deadline)
	}

	navigated, err := e.Controller.Goto(ctx, p.URL, parseWaitUntil(p.WaitUntil), timeout)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"navigated": navigated, "url": p.URL}, "", nil
}

func (e *Executor) execReload(ctx context.Context, step Step) (any, string, error) {
	var wait string
	if len(step.Params) > 0 {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(step.Params, &m); err == nil {
			if v, ok := m["waitUntil"]; ok {
				_ = json.Unmarshal(v, &wait)
			}
		}
	}
	deadline, ok := ctx.Deadline()
	timeout := 30 * time.Second
	if ok {
		timeout = time.Until(deadline)
	}
	if err := e.Controller.Reload(ctx, parseWaitUntil(wait), timeout); err != nil {
		return nil, "", err
	}
	return map[string]any{"reloaded": true}, "", nil
}

func (e *Executor) execWaitForNavigation(ctx context.Context, step Step) (any, string, error) {
	var wait string
	if len(step.Params) > 0 {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(step.Params, &m); err == nil {
			if v, ok := m["waitUntil"]; ok {
				_ = json.Unmarshal(v, &wait)
			}
		}
	}
	deadline, ok := ctx.Deadline()
	timeout := 30 * time.Second
	if ok {
		timeout = time.Until(deadline)
	}
	if err := e.Controller.WaitForNavigation(ctx, parseWaitUntil(wait), timeout); err != nil {
		return nil, "", err
	}
	return map[string]any{"settled": true}, "", nil
}

func (e *Executor) execViewport(ctx context.Context, step Step) (any, string, error) {
	var p ViewportParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if err := e.Controller.SetViewport(ctx, p.Width, p.Height); err != nil {
		return nil, "", err
	}
	return map[string]any{"width": p.Width, "height": p.Height}, "", nil
}

// execFrame handles the frame step. {top: true} reports the top-level
// frame id from CurrentFrame and leaves the controller's frame context
// as it is; switching by selector or name is not supported and returns
// an Execution error, since cdp.Session exposes no frame-tree query.
func (e *Executor) execFrame(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Selector string `json:"selector"`
		Name     string `json:"name"`
		Top      bool   `json:"top"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.Top {
		fc, err := e.Session.CurrentFrame(ctx)
		if err != nil {
			return nil, "", kinds.Wrap(kinds.NavigationError, err)
		}
		return map[string]any{"frameId": fc.FrameID}, "", nil
	}
	if p.Selector == "" && p.Name == "" {
		return nil, "", kinds.Wrap(kinds.Validation, fmt.Errorf("frame requires selector, name, or top"))
	}
	return nil, "", kinds.Wrap(kinds.Execution, fmt.Errorf("named/selector frame switching requires a dedicated frame-tree query not modeled by this engine's narrow CDP session contract"))
}
