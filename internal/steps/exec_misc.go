package steps

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/locator"
)

// execWait implements the wait step: {selector|text, timeout, visible}.
func (e *Executor) execWait(ctx context.Context, step Step) (any, string, error) {
	var p WaitParams
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Selector = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	timeout := msToDuration(p.Timeout)
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	loc := &locator.Locator{Session: e.Session, Context: cx}

	if p.Text != "" {
		ok, err := loc.WaitForText(ctx, p.Text, timeout, true)
		if err != nil {
			return nil, "", err
		}
		return map[string]any{"found": ok}, "", nil
	}
	el, err := loc.WaitForSelector(ctx, p.Selector, timeout, p.Visible)
	if err != nil {
		return nil, "", err
	}
	defer releaseIfValid(ctx, e.Session, el)
	return map[string]any{"found": true}, "", nil
}

func (e *Executor) execSleep(ctx context.Context, step Step) (any, string, error) {
	var p SleepParams
	var bareMs float64
	if err := json.Unmarshal(step.Params, &bareMs); err == nil {
		p.Ms = int(bareMs)
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	select {
	case <-ctx.Done():
		return nil, "", kinds.Wrap(kinds.Timeout, ctx.Err())
	case <-time.After(time.Duration(p.Ms) * time.Millisecond):
	}
	return map[string]any{"slept": p.Ms}, "", nil
}

// execEval implements the eval contract (§4.5): bare expression string
// or {expression, await, serialize, timeout}. serialize defaults true
// and wraps the expression with the recursive serializer so Dates,
// Maps, Sets, Errors, Elements, and NodeLists survive the JSON hop.
func (e *Executor) execEval(ctx context.Context, step Step) (any, string, error) {
	var p EvalParams
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Expression = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	serialize := true
	if p.Serialize != nil {
		serialize = *p.Serialize
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}

	expr := p.Expression
	if serialize {
		expr = serializerBundle + "(" + expr + ")"
	}
	res, err := e.Session.Eval(ctx, cx, expr, nil, true, p.Await)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	if res.ExceptionText != "" {
		return nil, "", kinds.Wrap(kinds.EvalError, fmt.Errorf("%s", annotateEvalException(res.ExceptionText)))
	}
	return map[string]any{"value": res.Value}, "", nil
}

// annotateEvalException adds the shell-escaping hint §7 calls for on
// syntax errors, which usually indicate an unescaped quote passed
// through a shell-invoked CLI rather than a real page-side bug.
func annotateEvalException(text string) string {
	if strings.Contains(text, "SyntaxError") {
		return text + " (hint: check shell-quoting of the expression argument)"
	}
	return text
}

// serializerBundle is a recursive value serializer invoked as a
// wrapper function: "serializerBundle(" + expr + ")". It tags Dates,
// Maps, Sets, Errors, Elements, and NodeLists so the host side can
// distinguish them from plain JSON, truncating arrays at 100 entries
// and objects at 50 keys.
const serializerBundle = `(function __serialize(v, depth) {
	depth = depth || 0;
	if (depth > 6) return {__type: 'truncated'};
	if (v === null || v === undefined) return v;
	if (v instanceof Date) return {__type: 'date', value: v.toISOString()};
	if (v instanceof Map) {
		const entries = Array.from(v.entries()).slice(0, 50);
		return {__type: 'map', entries: entries.map(function(e){ return [__serialize(e[0], depth+1), __serialize(e[1], depth+1)]; }), truncated: v.size > 50};
	}
	if (v instanceof Set) {
		const items = Array.from(v.values()).slice(0, 50);
		return {__type: 'set', values: items.map(function(x){ return __serialize(x, depth+1); }), truncated: v.size > 50};
	}
	if (v instanceof Error) return {__type: 'error', name: v.name, message: v.message};
	if (typeof Element !== 'undefined' && v instanceof Element) {
		return {__type: 'element', tag: v.tagName.toLowerCase(), id: v.id || null};
	}
	if (typeof NodeList !== 'undefined' && v instanceof NodeList) {
		return {__type: 'nodelist', length: v.length};
	}
	if (typeof v === 'number' && Number.isNaN(v)) return {__type: 'nan'};
	if (Array.isArray(v)) {
		const items = v.slice(0, 100).map(function(x){ return __serialize(x, depth+1); });
		return v.length > 100 ? {__type: 'array', items: items, truncated: true} : items;
	}
	if (typeof v === 'object') {
		const keys = Object.keys(v).slice(0, 50);
		const out = {};
		keys.forEach(function(k){ out[k] = __serialize(v[k], depth+1); });
		return Object.keys(v).length > 50 ? {__type: 'object', fields: out, truncated: true} : out;
	}
	return v;
})`

// execPoll implements poll: repeatedly evaluate a predicate until
// truthy or timeout.
func (e *Executor) execPoll(ctx context.Context, step Step) (any, string, error) {
	var p PollParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	interval := time.Duration(p.Interval) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	for {
		res, err := e.Session.Eval(ctx, cx, "("+p.Fn+")", nil, true, false)
		if err == nil {
			if truthy(res.Value) {
				return map[string]any{"value": res.Value}, "", nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, "", kinds.Wrap(kinds.Timeout, ctx.Err())
		case <-time.After(interval):
		}
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// execPageFunction evaluates a page-side function body with arguments,
// the generalized escape hatch behind eval for multi-statement bodies.
func (e *Executor) execPageFunction(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Fn   string `json:"fn"`
		Args []any  `json:"args"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	res, err := e.Session.Eval(ctx, cx, "("+p.Fn+").apply(null, arguments_)", p.Args, true, true)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	if res.ExceptionText != "" {
		return nil, "", kinds.Wrap(kinds.EvalError, fmt.Errorf("%s", res.ExceptionText))
	}
	return map[string]any{"value": res.Value}, "", nil
}

func (e *Executor) execConsole(ctx context.Context, step Step) (any, string, error) {
	if err := e.Session.EnableNetwork(ctx); err != nil {
		return nil, "", kinds.Wrap(kinds.Connection, err)
	}
	msgs, errs, err := e.Session.DrainConsole(ctx)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.Connection, err)
	}
	out := map[string]any{
		"errors":   len(errs),
		"warnings": countByType(msgs, "warning"),
		"messages": msgs,
	}
	return out, "", nil
}

func countByType(msgs []cdp.ConsoleMessage, typ string) int {
	n := 0
	for _, m := range msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (e *Executor) execPDF(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(step.Params, &p)
	data, err := e.Session.PrintToPDF(ctx)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	name := p.Path
	if name == "" {
		out, perr := outputPath(e.StateDir, "page-"+strconv.FormatInt(time.Now().UnixNano(), 10), "pdf")
		if perr != nil {
			return nil, "", kinds.Wrap(kinds.Execution, perr)
		}
		name = out
	}
	return map[string]any{"path": name, "bytes": len(data), "data": base64.StdEncoding.EncodeToString(data)}, "", nil
}
