package clocksync

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/setlist/go/internal/live/events"
)

// DefaultAlpha is the EWMA weight given to each new offset sample.
const DefaultAlpha = 0.18

// Sample is one completed PING/PONG exchange.
type Sample struct {
	PingID    string
	RoundTrip time.Duration
	Raw       time.Duration // unsmoothed reference - local estimate
	Smoothed  time.Duration
}

// Estimator tracks offsetMs = referenceClock - localClock from round-trip probes.
// Only the most recently issued ping is accepted; answers to superseded probes are
// dropped so a late or duplicated PONG can never move the estimate.
type Estimator struct {
	mu sync.Mutex

	alpha      float64
	offsetMs   float64
	lastPingID string
	samples    int
	lastRTT    time.Duration
	lastAt     time.Time
}

// NewEstimator creates an estimator. Alpha outside (0,1] falls back to DefaultAlpha.
func NewEstimator(alpha float64) *Estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Estimator{alpha: alpha}
}

// NewPing issues a fresh probe stamped with the local send time and makes it the only
// probe whose answer will be accepted.
func (e *Estimator) NewPing(now time.Time) events.PingPayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.New().String()
	e.lastPingID = id
	return events.PingPayload{PingID: id, T0: now.UnixMilli()}
}

// Observe folds a PONG received at local time t2 into the estimate.
// It reports false when the PONG answers anything but the latest ping.
func (e *Estimator) Observe(pong events.PongPayload, t2 time.Time) (Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastPingID == "" || pong.PingID != e.lastPingID {
		return Sample{}, false
	}
	// Each ping is good for exactly one sample.
	e.lastPingID = ""

	t0 := float64(pong.T0)
	t1 := float64(pong.T1)
	t2ms := float64(t2.UnixMilli())

	raw := t1 - (t0+t2ms)/2
	e.offsetMs = e.offsetMs*(1-e.alpha) + raw*e.alpha
	e.samples++
	e.lastRTT = time.Duration(t2ms-t0) * time.Millisecond
	e.lastAt = t2

	return Sample{
		PingID:    pong.PingID,
		RoundTrip: e.lastRTT,
		Raw:       msToDuration(raw),
		Smoothed:  msToDuration(e.offsetMs),
	}, true
}

// Offset returns the smoothed reference-minus-local offset. Zero until the first sample.
func (e *Estimator) Offset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return msToDuration(e.offsetMs)
}

// ToLocal converts an instant on the reference clock to the local clock.
func (e *Estimator) ToLocal(ref time.Time) time.Time {
	return ref.Add(-e.Offset())
}

// Samples returns how many probes have been folded in.
func (e *Estimator) Samples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples
}

// LastRoundTrip returns the round-trip time of the last accepted sample and when it arrived.
func (e *Estimator) LastRoundTrip() (time.Duration, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRTT, e.lastAt
}

// PendingPingID is the id of the probe still awaiting its answer, if any.
func (e *Estimator) PendingPingID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPingID
}

// Reset forgets every sample and any outstanding probe.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offsetMs = 0
	e.lastPingID = ""
	e.samples = 0
	e.lastRTT = 0
	e.lastAt = time.Time{}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
