package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingHooks struct {
	requests, releases int
	failRequest        bool
}

func (c *countingHooks) RequestWakeLock(ctx context.Context) error {
	c.requests++
	if c.failRequest {
		return errors.New("not supported")
	}
	return nil
}

func (c *countingHooks) ReleaseWakeLock(ctx context.Context) error {
	c.releases++
	return nil
}

func (c *countingHooks) EnterFullscreen(ctx context.Context) error { return nil }
func (c *countingHooks) ExitFullscreen(ctx context.Context) error  { return nil }

func TestTrackerIsIdempotent(t *testing.T) {
	hooks := &countingHooks{}
	tr := NewTracker(hooks)
	ctx := context.Background()

	tr.AcquireWakeLock(ctx)
	tr.AcquireWakeLock(ctx)
	assert.True(t, tr.WakeLockHeld())
	assert.Equal(t, 1, hooks.requests)

	tr.ReleaseWakeLock(ctx)
	tr.ReleaseWakeLock(ctx)
	assert.False(t, tr.WakeLockHeld())
	assert.Equal(t, 1, hooks.releases)
}

func TestTrackerDegradesSilently(t *testing.T) {
	hooks := &countingHooks{failRequest: true}
	tr := NewTracker(hooks)

	tr.AcquireWakeLock(context.Background())
	assert.False(t, tr.WakeLockHeld())

	tr.ReleaseWakeLock(context.Background())
	assert.Zero(t, hooks.releases, "nothing to release when the request failed")
}

func TestTrackerFullscreen(t *testing.T) {
	tr := NewTracker(nil)
	tr.EnterFullscreen(context.Background())
	assert.True(t, tr.Fullscreen())
	tr.ExitFullscreen(context.Background())
	assert.False(t, tr.Fullscreen())
}
