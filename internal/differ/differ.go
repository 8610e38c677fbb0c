// Package differ implements the Snapshot Differ & Context Capture
// (§4.7): a structured diff between two YAML accessibility-tree
// renderings, plus the page-context summary the runner attaches to its
// response. Grounded on internal/apps/install.go's permissionDiff
// set-difference pattern, generalized from a flat string slice to
// semantic-node lines keyed by role+name so reordering doesn't read as
// wholesale add/remove.
package differ

import (
	"fmt"
	"sort"
	"strings"
)

// Diff is the §3 Diff data-model entry.
type Diff struct {
	Navigated bool     `json:"navigated"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Changed   []string `json:"changed,omitempty"`
	Summary   string   `json:"summary,omitempty"`
}

// excludedRoles are the non-semantic roles §4.7 says to scope the diff
// away from: they churn on every render without representing a user-
// visible affordance.
var excludedRoles = map[string]bool{
	"generic":    true,
	"statictext": true,
	"":           true,
}

// line is one parsed accessibility-tree row: role, name, and the
// ref-less rendering used both as dedup key and as the emitted string.
type line struct {
	role, name, rendered string
}

// parseLines extracts semantic lines from a YAML accessibility-tree
// rendering, skipping structural keys (tree:, refs:, indentation-only
// separators) and excluded roles. It does not attempt a real YAML
// parse — the snapshot's one-list-item-per-node shape (§4.3 step 5)
// makes a direct scan reliable and avoids coupling the differ to
// ariasnapshot's Node struct. yaml.Marshal renders each node's role
// and name on their own continuation line under the "- " list marker,
// so a node's fields are accumulated across lines until the next "- "
// (or a dedent back to a structural key) starts the following node.
func parseLines(yamlText string) []line {
	var out []line
	var role, name string
	var rendered []string
	open := false

	flush := func() {
		if open && role != "" && !excludedRoles[strings.ToLower(role)] {
			out = append(out, line{role: role, name: name, rendered: strings.Join(rendered, " ")})
		}
		role, name = "", ""
		rendered = nil
		open = false
	}

	for _, raw := range strings.Split(yamlText, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if trimmed == "tree:" || trimmed == "refs:" || trimmed == "landmarks:" || trimmed == "interactive:" || trimmed == "counts:" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "- ") {
			flush()
			open = true
		} else if !open {
			continue
		}
		if k, _, _ := strings.Cut(strings.TrimPrefix(trimmed, "- "), ":"); strings.TrimSpace(k) == "ref" {
			continue
		}
		r, n := extractRoleName(trimmed)
		if r != "" {
			role = r
		}
		if n != "" {
			name = n
		}
		rendered = append(rendered, strings.TrimPrefix(trimmed, "- "))
	}
	flush()
	return out
}

// extractRoleName pulls `role: X` / `name: Y` tokens out of one
// snapshot line, tolerant of the "- role: X" list-item prefix and
// trailing "name: Y" on the same or a following indented line.
func extractRoleName(s string) (role, name string) {
	s = strings.TrimPrefix(s, "- ")
	for _, field := range splitFields(s) {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		switch key {
		case "role":
			role = val
		case "name":
			name = val
		}
	}
	return role, name
}

// splitFields splits a single-line "role: button name: Save" style
// fragment on two-or-more-space boundaries, since YAML scalar values
// may themselves contain single spaces.
func splitFields(s string) []string {
	var fields []string
	for _, part := range strings.Split(s, "  ") {
		part = strings.TrimSpace(part)
		if part != "" {
			fields = append(fields, part)
		}
	}
	if len(fields) == 0 {
		return []string{s}
	}
	return fields
}

func key(l line) string {
	return l.role + "\x00" + l.name
}

// Compute diffs two YAML snapshot renderings. If navigated is true, the
// diff is skipped entirely per §4.7 ("Navigation is inferred by URL
// inequality... on navigation, diff is skipped").
func Compute(preYAML, postYAML string, navigated bool) Diff {
	if navigated {
		return Diff{Navigated: true}
	}
	if preYAML == postYAML {
		return Diff{}
	}

	preLines := parseLines(preYAML)
	postLines := parseLines(postYAML)

	preByKey := make(map[string]line, len(preLines))
	for _, l := range preLines {
		preByKey[key(l)] = l
	}
	postByKey := make(map[string]line, len(postLines))
	for _, l := range postLines {
		postByKey[key(l)] = l
	}

	var added, removed, changed []string
	for k, l := range postByKey {
		if _, ok := preByKey[k]; !ok {
			added = append(added, l.rendered)
		}
	}
	for k, l := range preByKey {
		post, ok := postByKey[k]
		if !ok {
			removed = append(removed, l.rendered)
			continue
		}
		if post.rendered != l.rendered {
			changed = append(changed, post.rendered)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)

	d := Diff{Added: added, Removed: removed, Changed: changed}
	if len(added) > 0 || len(removed) > 0 || len(changed) > 0 {
		d.Summary = summarize(len(added), len(removed), len(changed))
	}
	return d
}

func summarize(added, removed, changed int) string {
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", removed))
	}
	if changed > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", changed))
	}
	return strings.Join(parts, ", ")
}

// ActionContext builds the human-readable "click — 3 added, 1 removed"
// summary the runner emits when a command-level diff has significant
// changes; actionLabel is the last step's action name.
func ActionContext(actionLabel string, d Diff) string {
	if d.Navigated || d.Summary == "" {
		return ""
	}
	return fmt.Sprintf("%s — %s", actionLabel, d.Summary)
}
