package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"attnroute/internal/telemetry"
)

// testClock is settable so warning thresholds and windows are testable.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestContext(t *testing.T) (*Context, *testClock) {
	t.Helper()
	t.Setenv(telemetry.EnvHome, t.TempDir())
	paths, err := telemetry.NewPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())

	clock := newTestClock()
	return &Context{Paths: paths, Clock: clock, SessionID: "sess-test"}, clock
}

func readEvents(t *testing.T, ctx *Context) []telemetry.Event {
	t.Helper()
	events, err := telemetry.ReadJSONL[telemetry.Event](ctx.Paths.EventsPath())
	require.NoError(t, err)
	return events
}
