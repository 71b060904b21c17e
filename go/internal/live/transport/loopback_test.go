package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (c *collector) handle(msg events.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func pause(t *testing.T, session, sender string) events.Message {
	t.Helper()
	msg, err := events.New(events.KindPause, session, sender, time.Now(), nil)
	require.NoError(t, err)
	return msg
}

func TestHubFansOutExcludingSender(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	a, b, c := hub.Endpoint(), hub.Endpoint(), hub.Endpoint()
	var ca, cb, cc collector

	_, err := a.Subscribe(ctx, "show-1", ca.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "show-1", cb.handle)
	require.NoError(t, err)
	_, err = c.Subscribe(ctx, "show-2", cc.handle)
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, pause(t, "show-1", "a")))

	require.Eventually(t, func() bool { return cb.len() == 1 }, time.Second, 5*time.Millisecond)
	// Give any wrong delivery a chance to show up.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ca.len(), "no echo to the publisher")
	assert.Zero(t, cc.len(), "other sessions are isolated")
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	a, b := hub.Endpoint(), hub.Endpoint()
	var cb collector

	sub, err := b.Subscribe(ctx, "show-1", cb.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("show-1"))

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Zero(t, hub.Subscribers("show-1"))

	require.NoError(t, a.Publish(ctx, pause(t, "show-1", "a")))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, cb.len())

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Publish(ctx, pause(t, "show-1", "a")), ErrClosed)
	_, err = a.Subscribe(ctx, "show-1", cb.handle)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHubDisconnectEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	a, b := hub.Endpoint(), hub.Endpoint()
	var cb collector

	sub, err := b.Subscribe(ctx, "show-1", cb.handle)
	require.NoError(t, err)
	_, err = a.Subscribe(ctx, "show-2", cb.handle)
	require.NoError(t, err)

	select {
	case <-sub.Done():
		t.Fatal("done before the link dropped")
	default:
	}

	assert.Equal(t, 1, hub.Disconnect("show-1"))
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended by disconnect")
	}
	assert.Zero(t, hub.Subscribers("show-1"))
	assert.Equal(t, 1, hub.Subscribers("show-2"))

	// The endpoint survives and can join again.
	again, err := b.Subscribe(ctx, "show-1", cb.handle)
	require.NoError(t, err)
	require.NoError(t, a.Publish(ctx, pause(t, "show-1", "a")))
	require.Eventually(t, func() bool { return cb.len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, again.Unsubscribe())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "live.sync.show-1", Subject("live.sync", "show-1"))
}
