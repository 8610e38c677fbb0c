package pagectl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/cdp/fakecdp"
	"github.com/cdpstep/cdpstep/internal/framestate"
)

// Idempotent navigation (§8): two consecutive Goto calls to the same
// URL leave the page in the same observable state — the session's URL
// is unchanged by the repeat, and both calls succeed identically.
func TestGotoIdempotent(t *testing.T) {
	s := fakecdp.New("target1")
	c := &Controller{Session: s, TargetID: "target1"}

	nav1, err := c.Goto(context.Background(), "http://example.test/page", cdp.WaitLoad, 0)
	require.NoError(t, err)
	assert.True(t, nav1)
	assert.Equal(t, "http://example.test/page", s.URL)

	nav2, err := c.Goto(context.Background(), "http://example.test/page", cdp.WaitLoad, 0)
	require.NoError(t, err)
	assert.Equal(t, nav1, nav2)
	assert.Equal(t, "http://example.test/page", s.URL)
}

func TestGotoDefaultsWaitWhenEmpty(t *testing.T) {
	s := fakecdp.New("target1")
	var gotWait cdp.NavigationWait
	s.NavigateFunc = func(ctx context.Context, url string, wait cdp.NavigationWait, timeout time.Duration) (bool, error) {
		gotWait = wait
		return true, nil
	}
	c := &Controller{Session: s, TargetID: "target1"}
	navigated, err := c.Goto(context.Background(), "http://example.test", "", 0)
	require.NoError(t, err)
	assert.True(t, navigated)
	assert.Equal(t, cdp.WaitLoad, gotWait)
}

func TestBackForwardClearFrameState(t *testing.T) {
	s := fakecdp.New("target1")
	frames, err := framestate.Open(t.TempDir())
	require.NoError(t, err)
	c := &Controller{Session: s, TargetID: "target1", Frames: frames}

	require.NoError(t, frames.Put("target1", "frame1", 7, time.Now()))
	require.NoError(t, c.Back(context.Background()))
	_, ok := frames.Get("target1", time.Now())
	assert.False(t, ok, "Back must clear the persisted frame context")

	require.NoError(t, frames.Put("target1", "frame1", 7, time.Now()))
	require.NoError(t, c.Forward(context.Background()))
	_, ok = frames.Get("target1", time.Now())
	assert.False(t, ok, "Forward must clear the persisted frame context")
}
