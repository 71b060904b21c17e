package clocksync

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exchange simulates one probe against a reference clock that runs trueOffset ahead
// of the local clock, with the given one-way latencies.
func exchange(t *testing.T, est *Estimator, local *clockwork.FakeClock, trueOffset, up, down time.Duration) (Sample, bool) {
	t.Helper()

	ping := est.NewPing(local.Now())
	local.Advance(up)
	pong := events.PongPayload{
		PingID: ping.PingID,
		T0:     ping.T0,
		T1:     local.Now().Add(trueOffset).UnixMilli(),
	}
	local.Advance(down)
	return est.Observe(pong, local.Now())
}

func TestEstimatorConvergesWithSymmetricLatency(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	est := NewEstimator(DefaultAlpha)
	trueOffset := 1234 * time.Millisecond

	for i := 0; i < 60; i++ {
		latency := time.Duration(20+i%7*10) * time.Millisecond
		_, ok := exchange(t, est, local, trueOffset, latency, latency)
		require.True(t, ok)
		local.Advance(700 * time.Millisecond)
	}

	assert.Equal(t, 60, est.Samples())
	assert.InDelta(t, float64(trueOffset), float64(est.Offset()), float64(2*time.Millisecond))
}

func TestEstimatorNegativeOffsetWithJitter(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	est := NewEstimator(0.2)
	trueOffset := -850 * time.Millisecond
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		latency := time.Duration(10+rng.Intn(60)) * time.Millisecond
		_, ok := exchange(t, est, local, trueOffset, latency, latency)
		require.True(t, ok)
	}

	assert.InDelta(t, float64(trueOffset), float64(est.Offset()), float64(2*time.Millisecond))
}

func TestEstimatorFirstSampleIsSmoothed(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	est := NewEstimator(0.5)

	sample, ok := exchange(t, est, local, time.Second, 50*time.Millisecond, 50*time.Millisecond)
	require.True(t, ok)

	assert.Equal(t, time.Second, sample.Raw)
	assert.Equal(t, 500*time.Millisecond, sample.Smoothed)
	assert.Equal(t, 100*time.Millisecond, sample.RoundTrip)
}

func TestEstimatorRejectsStalePong(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	est := NewEstimator(DefaultAlpha)

	first := est.NewPing(local.Now())
	local.Advance(700 * time.Millisecond)
	second := est.NewPing(local.Now())
	local.Advance(30 * time.Millisecond)

	_, ok := est.Observe(events.PongPayload{PingID: first.PingID, T0: first.T0, T1: local.Now().Add(time.Hour).UnixMilli()}, local.Now())
	assert.False(t, ok)
	assert.Zero(t, est.Offset())
	assert.Zero(t, est.Samples())
	assert.Equal(t, second.PingID, est.PendingPingID())

	_, ok = est.Observe(events.PongPayload{PingID: "someone-else", T0: second.T0, T1: local.Now().UnixMilli()}, local.Now())
	assert.False(t, ok)
	assert.Zero(t, est.Offset())
}

func TestEstimatorIgnoresDuplicatePong(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	est := NewEstimator(DefaultAlpha)

	ping := est.NewPing(local.Now())
	local.Advance(40 * time.Millisecond)
	pong := events.PongPayload{PingID: ping.PingID, T0: ping.T0, T1: local.Now().Add(-20 * time.Millisecond).Add(300 * time.Millisecond).UnixMilli()}

	_, ok := est.Observe(pong, local.Now())
	require.True(t, ok)
	before := est.Offset()

	_, ok = est.Observe(pong, local.Now())
	assert.False(t, ok)
	assert.Equal(t, before, est.Offset())
}

func TestEstimatorWithoutSamplesIsIdentity(t *testing.T) {
	est := NewEstimator(0)
	ref := time.UnixMilli(1_700_000_005_000)

	assert.Zero(t, est.Offset())
	assert.Equal(t, ref, est.ToLocal(ref))
}

func TestEstimatorReset(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	est := NewEstimator(DefaultAlpha)
	_, ok := exchange(t, est, local, time.Second, 10*time.Millisecond, 10*time.Millisecond)
	require.True(t, ok)
	est.NewPing(local.Now())

	est.Reset()

	assert.Zero(t, est.Offset())
	assert.Zero(t, est.Samples())
	assert.Empty(t, est.PendingPingID())
}
