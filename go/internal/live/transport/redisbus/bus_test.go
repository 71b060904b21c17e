package redisbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/transport"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T, mr *miniredis.Miniredis, clientID string) *Bus {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	bus := New(client, "", clientID)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

type inbox struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (i *inbox) handle(msg events.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func TestBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newBus(t, mr, "a"), newBus(t, mr, "b")
	ctx := context.Background()

	var atA, atB inbox
	_, err := a.Subscribe(ctx, "show-1", atA.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "show-1", atB.handle)
	require.NoError(t, err)

	start := events.StartPayload{MaestroID: "a", MaestroStartAtMs: 1_700_000_004_000, BPM: 96, ViewMode: events.ViewLyrics}
	msg, err := events.New(events.KindStart, "show-1", "a", time.UnixMilli(1_700_000_000_000), start)
	require.NoError(t, err)
	require.NoError(t, a.Publish(ctx, msg))

	require.Eventually(t, func() bool { return atB.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	payload, err := events.ParsePayload(atB.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, start, payload)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atA.len(), "own messages are filtered")
}

func TestBusChannelNaming(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newBus(t, mr, "a")
	assert.Equal(t, "live:show-1", bus.Channel("show-1"))

	_, err := bus.Subscribe(context.Background(), "show-1", func(events.Message) {})
	require.NoError(t, err)
	assert.Contains(t, mr.PubSubChannels(""), "live:show-1")
}

func TestBusDropsGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newBus(t, mr, "a")

	var got inbox
	_, err := bus.Subscribe(context.Background(), "show-1", got.handle)
	require.NoError(t, err)

	mr.Publish("live:show-1", "not json")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, got.len())
}

func TestBusUnsubscribeAndClose(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newBus(t, mr, "a")
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "show-1", func(events.Message) {})
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, bus.Close())
	msg, err := events.New(events.KindPause, "show-1", "a", time.Now(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, bus.Publish(ctx, msg), transport.ErrClosed)
	_, err = bus.Subscribe(ctx, "show-1", func(events.Message) {})
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestConnectFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, addr, "", "a")
	assert.Error(t, err)
}
