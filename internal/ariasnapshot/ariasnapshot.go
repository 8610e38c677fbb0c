// Package ariasnapshot implements the Aria Snapshot Engine (§4.3):
// build the accessibility tree, assign versioned refs, maintain the
// in-page ref→element map, and render a YAML snapshot. Grounded on
// internal/browser/snapshot.go (annotateSnapshot's ref-assignment
// pass) and agent/tools/browser.go (formatAXNodes), with the walk
// itself expressed as fixed in-page script (internal/pagescript) per
// the redesign notes, and the wire rendering produced here with
// gopkg.in/yaml.v3.
package ariasnapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/pagescript"
)

// Node is one accessibility-tree element, emitted by generateSnapshot.
type Node struct {
	Role     string  `json:"role" yaml:"role"`
	Name     string  `json:"name,omitempty" yaml:"name,omitempty"`
	Ref      string  `json:"ref,omitempty" yaml:"ref,omitempty"`
	Checked  *bool   `json:"checked,omitempty" yaml:"checked,omitempty"`
	Disabled *bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Expanded *bool   `json:"expanded,omitempty" yaml:"expanded,omitempty"`
	Value    *string `json:"value,omitempty" yaml:"value,omitempty"`
	Text     string  `json:"text,omitempty" yaml:"text,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// RefInfo is the refs-map entry: just enough to recognize the element
// from the wire response without exposing internal metadata.
type RefInfo struct {
	Role string `json:"role" yaml:"role"`
	Name string `json:"name" yaml:"name"`
}

// rawResult is the JSON shape generateSnapshot() returns by value.
type rawResult struct {
	Unchanged  bool               `json:"unchanged"`
	SnapshotID int                `json:"snapshotId"`
	Tree       []*Node            `json:"tree"`
	Refs       map[string]RefInfo `json:"refs"`
}

// Result is a completed (non-"unchanged") snapshot.
type Result struct {
	SnapshotID int                `yaml:"snapshotId"`
	Tree       []*Node            `yaml:"tree"`
	Refs       map[string]RefInfo `yaml:"refs"`
	// YAML is the rendered textual form returned to the caller.
	YAML string `yaml:"-"`
}

// Options mirrors the §4.3 generate() parameter set.
type Options struct {
	Root          string
	Mode          string // "ai" | "full"; not passed to the page script, so it does not change the output
	Detail        string // "full" | "summary" | "interactive" | ""
	MaxDepth      int
	MaxElements   int
	IncludeText   bool
	IncludeFrames bool
	ViewportOnly  bool
	PierceShadow  bool
	PreserveRefs  bool
	Since         string
}

func (o Options) toArgs() map[string]any {
	return map[string]any{
		"root": o.Root, "detail": o.Detail, "maxDepth": o.MaxDepth,
		"maxElements": o.MaxElements, "includeText": o.IncludeText,
		"viewportOnly": o.ViewportOnly, "pierceShadow": o.PierceShadow,
		"preserveRefs": o.PreserveRefs, "since": o.Since,
	}
}

func iife(call string) string {
	return fmt.Sprintf("(function(){ %s; return (%s); })()", pagescript.Bundle, call)
}

// Generate builds a fresh (or, with Since set and the page unchanged,
// reused) accessibility snapshot and renders it to YAML.
func Generate(ctx context.Context, session cdp.Session, cx cdp.ContextID, opts Options) (*Result, bool, error) {
	res, err := session.Eval(ctx, cx, iife("__cdpstep.generateSnapshot(arguments_[0])"), []any{opts.toArgs()}, true, false)
	if err != nil {
		return nil, false, err
	}
	if res.ExceptionText != "" {
		return nil, false, kinds.Wrap(kinds.EvalError, fmt.Errorf("%s", res.ExceptionText))
	}

	b, err := json.Marshal(res.Value)
	if err != nil {
		return nil, false, kinds.Wrap(kinds.Execution, err)
	}
	var raw rawResult
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, false, kinds.Wrap(kinds.Execution, err)
	}
	if raw.Unchanged {
		return nil, true, nil
	}

	result := &Result{SnapshotID: raw.SnapshotID, Tree: raw.Tree, Refs: raw.Refs}
	text, err := render(result, opts.Detail)
	if err != nil {
		return nil, false, kinds.Wrap(kinds.Execution, err)
	}
	result.YAML = text
	return result, false, nil
}

func render(result *Result, detail string) (string, error) {
	switch detail {
	case "summary":
		return renderSummary(result)
	case "interactive":
		return renderInteractive(result)
	default:
		out := struct {
			SnapshotID int                `yaml:"snapshotId"`
			Tree       []*Node            `yaml:"tree"`
			Refs       map[string]RefInfo `yaml:"refs"`
		}{result.SnapshotID, result.Tree, result.Refs}
		b, err := yaml.Marshal(out)
		return string(b), err
	}
}

var landmarkRoles = map[string]bool{
	"banner": true, "navigation": true, "main": true, "contentinfo": true,
	"region": true, "form": true, "search": true,
}

func renderSummary(result *Result) (string, error) {
	landmarks := []*Node{}
	counts := map[string]int{}
	walk(result.Tree, func(n *Node) {
		counts[n.Role]++
		if landmarkRoles[n.Role] {
			landmarks = append(landmarks, n)
		}
	})
	out := struct {
		SnapshotID int            `yaml:"snapshotId"`
		Landmarks  []*Node        `yaml:"landmarks"`
		Counts     map[string]int `yaml:"counts"`
	}{result.SnapshotID, landmarks, counts}
	b, err := yaml.Marshal(out)
	return string(b), err
}

func renderInteractive(result *Result) (string, error) {
	var flat []*Node
	walk(result.Tree, func(n *Node) {
		if n.Ref != "" {
			flat = append(flat, &Node{Role: n.Role, Name: n.Name, Ref: n.Ref, Checked: n.Checked, Disabled: n.Disabled})
		}
	})
	out := struct {
		SnapshotID  int     `yaml:"snapshotId"`
		Interactive []*Node `yaml:"interactive"`
	}{result.SnapshotID, flat}
	b, err := yaml.Marshal(out)
	return string(b), err
}

func walk(nodes []*Node, fn func(*Node)) {
	for _, n := range nodes {
		fn(n)
		walk(n.Children, fn)
	}
}
