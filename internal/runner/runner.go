// Package runner implements the step-driven orchestrator (§5/§6/§7):
// validate the whole request, execute steps sequentially with
// guaranteed cleanup, capture pre/post context and a snapshot diff, and
// assemble the single JSON response one invocation produces. Grounded
// on internal/browser/manager.go's singleton-manager/session lifecycle
// pattern, adapted from a long-lived manager to the single-invocation,
// no-singleton model §5 describes ("each invocation is one request,
// one response").
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdpstep/cdpstep/internal/ariasnapshot"
	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/debuglog"
	"github.com/cdpstep/cdpstep/internal/differ"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/logging"
	"github.com/cdpstep/cdpstep/internal/pagectl"
	"github.com/cdpstep/cdpstep/internal/registry"
	"github.com/cdpstep/cdpstep/internal/steps"
	"github.com/cdpstep/cdpstep/internal/validate"
)

// Response is the §6.1 command-line response shape.
type Response struct {
	Status           string             `json:"status"` // "ok" | "error"
	Tab              string             `json:"tab,omitempty"`
	Navigated        bool               `json:"navigated,omitempty"`
	FullSnapshot     string             `json:"fullSnapshot,omitempty"`
	Context          *differ.Context    `json:"context,omitempty"`
	Changes          string             `json:"changes,omitempty"`
	Console          *ConsoleSummary    `json:"console,omitempty"`
	Steps            []steps.StepResult `json:"steps"`
	Errors           []string           `json:"errors,omitempty"`
	ViewportSnapshot string             `json:"viewportSnapshot,omitempty"`
	Error            *steps.StepError   `json:"error,omitempty"`
}

// ConsoleSummary is the response's console rollup.
type ConsoleSummary struct {
	Errors   int      `json:"errors"`
	Warnings int      `json:"warnings"`
	Messages []string `json:"messages,omitempty"`
}

// Runner holds every external collaborator one invocation needs. One
// Runner is constructed per invocation, mirroring the single-threaded,
// no-singleton scheduling model (§5).
type Runner struct {
	Session    cdp.Session
	Controller *pagectl.Controller
	Registry   *registry.Registry
	StateDir   string
	TabAlias   string

	DefaultStepTimeout time.Duration
	DebugLog           *debuglog.Writer
}

// Run validates req, executes its steps in order, and assembles the
// final response. It never panics: every failure is classified and
// reported in the response rather than propagated to the caller,
// consistent with "one invocation, one response."
func (r *Runner) Run(parent context.Context, req steps.Request) Response {
	result := validate.Request(req)
	if !result.Valid {
		msg := firstValidationError(result)
		resp := Response{
			Status: "error",
			Tab:    r.TabAlias,
			Error:  &steps.StepError{Type: string(kinds.Validation), Message: msg},
		}
		r.writeDebugLog(req, resp, nil)
		return resp
	}

	overallTimeout := r.DefaultStepTimeout
	if req.Timeout > 0 {
		overallTimeout = time.Duration(req.Timeout) * time.Millisecond
	}
	ctx := parent
	var cancel context.CancelFunc
	if overallTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, overallTimeout)
		defer cancel()
	}

	exec := &steps.Executor{
		Session:            r.Session,
		Controller:         r.Controller,
		Registry:           r.Registry,
		StateDir:           r.StateDir,
		TabAlias:           r.TabAlias,
		DefaultStepTimeout: r.DefaultStepTimeout,
	}

	preContext, _ := r.captureContext(ctx)
	preYAML := r.captureViewportYAML(ctx)

	var parsed []steps.Step
	var actionNames []string
	for i, raw := range req.Steps {
		step, _ := steps.Parse(i, raw) // already validated; parse errors can't recur here
		parsed = append(parsed, step)
		actionNames = append(actionNames, string(step.Action))
	}

	resp := Response{Status: "ok", Tab: r.TabAlias, Steps: make([]steps.StepResult, 0, len(parsed))}

	for _, step := range parsed {
		start := time.Now()
		stepResult := exec.Run(ctx, step)
		logging.LogStep(string(step.Action), stepResult.Status, time.Since(start))

		resp.Steps = append(resp.Steps, stepResult)
		if stepResult.Status == "error" {
			resp.Status = "error"
			if stepResult.Error != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("step %d (%s): %s", step.Index, step.Action, stepResult.Error.Message))
			}
			break // stopOnError default
		}
	}

	postContext, haveContext := r.captureContext(ctx)
	if haveContext {
		resp.Context = &postContext
	}

	// §4.7: navigation is inferred by URL inequality between pre/post
	// captures; on navigation the diff is skipped rather than computed
	// against a now-unrelated prior snapshot.
	navigated := haveContext && differ.Navigated(preContext, postContext)
	resp.Navigated = navigated

	if !navigated {
		postYAML := r.captureViewportYAML(ctx)
		if preYAML != "" || postYAML != "" {
			d := differ.Compute(preYAML, postYAML, false)
			if d.Summary != "" {
				resp.ViewportSnapshot = postYAML
				if label := lastActionLabel(resp.Steps); label != "" {
					resp.Changes = differ.ActionContext(label, d)
				} else {
					resp.Changes = d.Summary
				}
			}
		}
	}

	if msgs, errs, err := r.Session.DrainConsole(ctx); err == nil {
		resp.Console = summarizeConsole(msgs, errs)
	}

	r.writeDebugLog(req, resp, actionNames)
	return resp
}

func lastActionLabel(results []steps.StepResult) string {
	if len(results) == 0 {
		return ""
	}
	last := results[len(results)-1]
	return string(last.Action)
}

func (r *Runner) captureContext(ctx context.Context) (differ.Context, bool) {
	cx, err := r.Controller.CurrentContext(ctx)
	if err != nil {
		return differ.Context{}, false
	}
	c, err := differ.Capture(ctx, r.Session, cx)
	if err != nil {
		return differ.Context{}, false
	}
	return c, true
}

func (r *Runner) captureViewportYAML(ctx context.Context) string {
	cx, err := r.Controller.CurrentContext(ctx)
	if err != nil {
		return ""
	}
	result, unchanged, err := ariasnapshot.Generate(ctx, r.Session, cx, ariasnapshot.Options{ViewportOnly: true, Detail: "interactive"})
	if err != nil || unchanged || result == nil {
		return ""
	}
	return result.YAML
}

func summarizeConsole(msgs []cdp.ConsoleMessage, errs []cdp.PageError) *ConsoleSummary {
	if len(msgs) == 0 && len(errs) == 0 {
		return nil
	}
	s := &ConsoleSummary{Errors: len(errs)}
	for _, m := range msgs {
		if m.Type == "warning" {
			s.Warnings++
		}
		s.Messages = append(s.Messages, fmt.Sprintf("[%s] %s", m.Type, m.Text))
	}
	for _, e := range errs {
		s.Messages = append(s.Messages, "[exception] "+e.Message)
	}
	return s
}

func firstValidationError(result validate.Result) string {
	if len(result.Errors) == 0 {
		return "invalid request"
	}
	first := result.Errors[0]
	if len(first.Errors) == 0 {
		return "invalid request"
	}
	return first.Errors[0]
}

func (r *Runner) writeDebugLog(req steps.Request, resp Response, actions []string) {
	if r.DebugLog == nil {
		return
	}
	_, _ = r.DebugLog.Write(debuglog.Record{
		Tab:      r.TabAlias,
		Actions:  actions,
		Status:   resp.Status,
		Request:  req,
		Response: resp,
	})
}

// MarshalResponse renders resp as the wire JSON body, indented for
// human-readable CLI output.
func MarshalResponse(resp Response) ([]byte, error) {
	return json.MarshalIndent(resp, "", "  ")
}

// ExitCode returns the process exit code §6.1 specifies for resp.
func ExitCode(resp Response) int {
	if resp.Status == "ok" {
		return 0
	}
	return 1
}
