package wsrelay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/setlist/go/internal/live/session"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRejoinsAfterRelayDropsIt(t *testing.T) {
	tr := startRelay(t)

	cfg := session.DefaultConfig("show-1")
	cfg.ClientID = "stage-left"
	cfg.AutoFullscreen = false
	cfg.FrameInterval = 5 * time.Millisecond
	cfg.ReconnectMin = 20 * time.Millisecond
	cfg.ReconnectMax = 100 * time.Millisecond

	sl := setlist.Setlist{
		EventID: "show-1",
		Songs: []setlist.Song{{ID: "s1", Title: "Opener", BPM: 120, Blocks: []setlist.Block{
			{ID: "b1", Kind: "Verse", Chords: []string{"C"}, Compasses: 1},
		}}},
	}

	client := NewClient(tr.wsURL, cfg.ClientID)
	t.Cleanup(func() { _ = client.Close() })
	s, err := session.New(cfg, sl, client, nil, nil)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		states []bool
	)
	s.Observe(func(st session.State) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != st.Connected {
			states = append(states, st.Connected)
		}
	})
	linkHistory := func() []bool {
		mu.Lock()
		defer mu.Unlock()
		return append([]bool(nil), states...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return s.Snapshot().Connected }, 2*time.Second, 5*time.Millisecond)
	waitConnections(t, tr, 1)

	tr.relay.closeAll()

	require.Eventually(t, func() bool {
		h := linkHistory()
		return len(h) >= 3 && h[len(h)-1]
	}, 3*time.Second, 5*time.Millisecond, "session reports the loss and then rejoins")
	h := linkHistory()
	assert.Equal(t, []bool{true, false, true}, h[len(h)-3:])
	waitConnections(t, tr, 1)

	// Local playback keeps working across the outage.
	require.NoError(t, s.Play(ctx))
	assert.True(t, s.Snapshot().CountingDown)
}
