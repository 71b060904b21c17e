package playback

import (
	"math"
	"time"
)

const (
	// DefaultImmediateThreshold is the shortest pre-roll still worth animating.
	DefaultImmediateThreshold = 150 * time.Millisecond
	// DefaultMaxCountdownBeats caps the displayed countdown number.
	DefaultMaxCountdownBeats = 4
)

// Countdown is the local pre-roll derived from a synchronized start instant.
// Beats is only what gets displayed; LocalTarget is when playback really begins.
type Countdown struct {
	LocalTarget time.Time
	Immediate   bool
	Beats       int
	Beat        time.Duration
}

// PlanCountdown converts a start instant already expressed on the local clock into a
// beat-quantized countdown. Starts closer than threshold are not animated.
func PlanCountdown(localTarget, now time.Time, beat, threshold time.Duration, maxBeats int) Countdown {
	if maxBeats < 1 {
		maxBeats = DefaultMaxCountdownBeats
	}

	toStart := localTarget.Sub(now)
	if toStart < 0 {
		toStart = 0
	}

	c := Countdown{LocalTarget: localTarget, Beat: beat}
	if toStart <= threshold || beat <= 0 {
		c.Immediate = true
		return c
	}

	beats := int(math.Round(float64(toStart) / float64(beat)))
	c.Beats = min(maxBeats, max(1, beats))
	return c
}

// Residual is how long to keep waiting once the displayed countdown has run out.
func (c Countdown) Residual(now time.Time) time.Duration {
	if d := c.LocalTarget.Sub(now); d > 0 {
		return d
	}
	return 0
}
