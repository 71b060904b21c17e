package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanCountdown(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	beat := 500 * time.Millisecond

	tests := []struct {
		name      string
		toStart   time.Duration
		immediate bool
		beats     int
	}{
		{"eight beats of lead clamps to four", 4 * time.Second, false, 4},
		{"three beats", 1500 * time.Millisecond, false, 3},
		{"rounds to nearest beat", 1300 * time.Millisecond, false, 3},
		{"just above threshold shows one", 160 * time.Millisecond, false, 1},
		{"at threshold starts immediately", 150 * time.Millisecond, true, 0},
		{"already late starts immediately", -2 * time.Second, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := now.Add(tt.toStart)
			c := PlanCountdown(target, now, beat, DefaultImmediateThreshold, DefaultMaxCountdownBeats)

			assert.Equal(t, tt.immediate, c.Immediate)
			assert.Equal(t, tt.beats, c.Beats)
			assert.Equal(t, target, c.LocalTarget)
		})
	}
}

func TestCountdownResidual(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := PlanCountdown(now.Add(4*time.Second), now, 500*time.Millisecond, DefaultImmediateThreshold, 4)

	// After the four displayed beats, half the lead remains.
	assert.Equal(t, 2*time.Second, c.Residual(now.Add(2*time.Second)))
	assert.Zero(t, c.Residual(now.Add(5*time.Second)))
}
