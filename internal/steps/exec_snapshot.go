package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cdpstep/cdpstep/internal/ariasnapshot"
	"github.com/cdpstep/cdpstep/internal/kinds"
)

// execSnapshot implements the snapshot step (§4.3/§4.5): generate an
// accessibility snapshot and return its YAML rendering plus refs map.
func (e *Executor) execSnapshot(ctx context.Context, step Step) (any, string, error) {
	var p SnapshotParams
	var bareTrue bool
	if err := decodeBoolOrStruct(step.Params, &bareTrue, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}

	opts := ariasnapshot.Options{
		Root: p.Root, Mode: p.Mode, Detail: p.Detail,
		MaxDepth: p.MaxDepth, MaxElements: p.MaxElements,
		IncludeText: p.IncludeText, IncludeFrames: p.IncludeFrames,
		ViewportOnly: p.ViewportOnly, PierceShadow: p.PierceShadow,
		PreserveRefs: p.PreserveRefs, Since: p.Since,
	}
	result, unchanged, err := ariasnapshot.Generate(ctx, e.Session, cx, opts)
	if err != nil {
		return nil, "", err
	}
	if unchanged {
		return map[string]any{"unchanged": true}, "", nil
	}
	return map[string]any{
		"snapshotId": result.SnapshotID,
		"yaml":       result.YAML,
		"refs":       result.Refs,
	}, "", nil
}

// decodeBoolOrStruct accepts the bare-boolean shorthand ("snapshot":
// true) alongside the full object form.
func decodeBoolOrStruct[T any](raw []byte, boolOut *bool, structOut *T) error {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		*boolOut = b
		return nil
	}
	return decodeParams(raw, structOut)
}

// execSnapshotSearch runs a snapshot then filters its flat node list
// by a role/name substring match, for "find me the button named X"
// style queries without a full accessibility dump.
func (e *Executor) execSnapshotSearch(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Role string `json:"role"`
		Name string `json:"name"`
	}
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	result, unchanged, err := ariasnapshot.Generate(ctx, e.Session, cx, ariasnapshot.Options{Detail: "interactive"})
	if err != nil {
		return nil, "", err
	}
	if unchanged || result == nil {
		return nil, "", kinds.Wrap(kinds.Execution, fmt.Errorf("snapshotSearch requires a fresh snapshot"))
	}

	var matches []map[string]any
	var walk func(nodes []*ariasnapshot.Node)
	walk = func(nodes []*ariasnapshot.Node) {
		for _, n := range nodes {
			roleOK := p.Role == "" || n.Role == p.Role
			nameOK := p.Name == "" || strings.Contains(strings.ToLower(n.Name), strings.ToLower(p.Name))
			if n.Ref != "" && roleOK && nameOK {
				matches = append(matches, map[string]any{"role": n.Role, "name": n.Name, "ref": n.Ref})
			}
			walk(n.Children)
		}
	}
	walk(result.Tree)
	return map[string]any{"matches": matches}, "", nil
}
