package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const counterBefore = `tree:
  - role: button
    name: Increment
  - role: text
    name: "Count: 0"
`

const counterAfterChanged = `tree:
  - role: button
    name: Increment
  - role: text
    name: "Count: 1"
`

const counterAfterAdded = `tree:
  - role: button
    name: Increment
  - role: text
    name: "Count: 0"
  - role: alert
    name: "Saved"
`

// Diff monotonicity (§8): byte-identical snapshots produce no summary;
// otherwise at least one of added/removed/changed is non-empty.
func TestComputeMonotonicity(t *testing.T) {
	identical := Compute(counterBefore, counterBefore, false)
	assert.Empty(t, identical.Summary)
	assert.Empty(t, identical.Added)
	assert.Empty(t, identical.Removed)
	assert.Empty(t, identical.Changed)

	changed := Compute(counterBefore, counterAfterChanged, false)
	assert.NotEmpty(t, changed.Summary)
	assert.True(t, len(changed.Added)+len(changed.Removed)+len(changed.Changed) > 0)

	added := Compute(counterBefore, counterAfterAdded, false)
	assert.NotEmpty(t, added.Summary)
	assert.Len(t, added.Added, 1)
	assert.Contains(t, added.Added[0], "Saved")
}

func TestComputeSkipsOnNavigation(t *testing.T) {
	d := Compute(counterBefore, counterAfterAdded, true)
	assert.True(t, d.Navigated)
	assert.Empty(t, d.Summary)
	assert.Empty(t, d.Added)
}

func TestComputeExcludesGenericAndText(t *testing.T) {
	pre := "tree:\n  - role: generic\n    name: wrapper\n"
	post := "tree:\n  - role: generic\n    name: wrapper2\n  - role: statictext\n    name: hello\n"
	d := Compute(pre, post, false)
	assert.Empty(t, d.Summary, "generic/statictext churn must not surface as a change")
}

func TestActionContextFormatting(t *testing.T) {
	d := Compute(counterBefore, counterAfterChanged, false)
	out := ActionContext("click", d)
	assert.Contains(t, out, "click")
	assert.Contains(t, out, d.Summary)
}

func TestComputeDetectsValueOnlyChange(t *testing.T) {
	pre := "tree:\n  - role: textbox\n    name: Email\n    value: a\n"
	post := "tree:\n  - role: textbox\n    name: Email\n    value: ab\n"
	d := Compute(pre, post, false)
	a := assert.New(t)
	a.Empty(d.Added)
	a.Empty(d.Removed)
	a.Len(d.Changed, 1)
}

func TestActionContextEmptyWhenNoSummary(t *testing.T) {
	d := Compute(counterBefore, counterBefore, false)
	assert.Equal(t, "", ActionContext("click", d))
}

func TestNavigated(t *testing.T) {
	assert.True(t, Navigated(Context{URL: "http://a"}, Context{URL: "http://b"}))
	assert.False(t, Navigated(Context{URL: "http://a"}, Context{URL: "http://a"}))
	assert.False(t, Navigated(Context{}, Context{URL: "http://a"}))
}
