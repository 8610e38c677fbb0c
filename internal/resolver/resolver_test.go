package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/cdp/fakecdp"
)

// scriptLadder builds an EvalFunc that answers each rung of the §4.4
// resolution ladder according to which rung is supposed to "find" the
// node, simulating the in-page ref store's verdict.
func scriptLadder(t *testing.T, foundAt string, existed bool) *fakecdp.Session {
	t.Helper()
	s := fakecdp.New("target1")
	s.EvalFunc = func(ctx context.Context, cx cdp.ContextID, expression string, args []any, returnByValue, awaitPromise bool) (cdp.EvalResult, error) {
		switch {
		case strings.Contains(expression, "__cdpstep.resolveFast("):
			return cdp.EvalResult{Value: map[string]any{"found": foundAt == "fast", "existed": existed}}, nil
		case strings.Contains(expression, "__cdpstep.resolveBySelector("):
			return cdp.EvalResult{Value: map[string]any{"found": foundAt == "selector"}}, nil
		case strings.Contains(expression, "__cdpstep.resolveByRoleSearch("):
			return cdp.EvalResult{Value: map[string]any{"found": foundAt == "role"}}, nil
		case strings.Contains(expression, "__cdpstep.ensureRefStore("):
			return cdp.EvalResult{ObjectID: s.NewObject()}, nil
		}
		return cdp.EvalResult{}, nil
	}
	return s
}

func TestResolveFastPath(t *testing.T) {
	s := scriptLadder(t, "fast", true)
	res, err := Resolve(context.Background(), s, 1, "s1e7")
	require.NoError(t, err)
	assert.Equal(t, Resolved, res.Outcome)
	assert.False(t, res.ReResolved, "fast-path hits must not be reported as re-resolved")
	assert.NotEmpty(t, res.Element.ObjectID)
}

func TestResolveBySelectorFallback(t *testing.T) {
	s := scriptLadder(t, "selector", true)
	res, err := Resolve(context.Background(), s, 1, "s1e7")
	require.NoError(t, err)
	assert.Equal(t, Resolved, res.Outcome)
	assert.True(t, res.ReResolved, "selector-rung hits must be flagged as re-resolved")
}

func TestResolveByRoleSearchFallback(t *testing.T) {
	s := scriptLadder(t, "role", true)
	res, err := Resolve(context.Background(), s, 1, "s1e7")
	require.NoError(t, err)
	assert.Equal(t, Resolved, res.Outcome)
	assert.True(t, res.ReResolved)
}

func TestResolveStaleWhenPreviouslyExisted(t *testing.T) {
	s := scriptLadder(t, "none", true)
	res, err := Resolve(context.Background(), s, 1, "s1e7")
	require.NoError(t, err)
	assert.Equal(t, Stale, res.Outcome)
}

func TestResolveNotFoundWhenNeverExisted(t *testing.T) {
	s := scriptLadder(t, "none", false)
	res, err := Resolve(context.Background(), s, 1, "s1e7")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Outcome)
}

func TestResolveRejectsMalformedRef(t *testing.T) {
	s := fakecdp.New("target1")
	_, err := Resolve(context.Background(), s, 1, "not-a-ref")
	require.Error(t, err)
}

// Ref format stability (§8): RefPattern accepts exactly the wire-stable
// shape and nothing else.
func TestRefPatternMatchesSpecShape(t *testing.T) {
	valid := []string{"s1e1", "s12e345", "s0e0"}
	invalid := []string{"", "s1e", "se1", "1e1", "s1e1x", "S1E1", "s1 e1"}
	for _, v := range valid {
		assert.True(t, RefPattern.MatchString(v), "expected %q to match", v)
	}
	for _, v := range invalid {
		assert.False(t, RefPattern.MatchString(v), "expected %q not to match", v)
	}
}
