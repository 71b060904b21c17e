package timing

import (
	"math"
	"time"
)

const (
	DefaultBPM       = 120.0
	MinBPM           = 30.0
	MaxBPM           = 300.0
	DefaultCompasses = 4

	// BeatsPerCompass assumes 4/4; blocks are measured in whole compasses.
	BeatsPerCompass = 4

	overrideFloor   = 20.0
	overrideCeiling = 300.0
)

// ClampBPM keeps a tempo inside the playable range. Missing or invalid tempos
// fall back to DefaultBPM.
func ClampBPM(bpm float64) float64 {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm <= 0 {
		return DefaultBPM
	}
	return math.Max(MinBPM, math.Min(MaxBPM, bpm))
}

// BeatDuration returns 60000/bpm milliseconds for the clamped tempo.
func BeatDuration(bpm float64) time.Duration {
	return msToDuration(60000 / ClampBPM(bpm))
}

// BlockDuration returns how long a block of the given compass count lasts at bpm.
func BlockDuration(bpm float64, compasses int) time.Duration {
	if compasses <= 0 {
		compasses = DefaultCompasses
	}
	beatMs := 60000 / ClampBPM(bpm)
	return msToDuration(beatMs * BeatsPerCompass * float64(compasses))
}

// EffectiveBPM picks the override when it is a sane tempo, otherwise the song's own.
func EffectiveBPM(songBPM, override float64) float64 {
	if override > overrideFloor && override < overrideCeiling && !math.IsInf(override, 0) {
		return override
	}
	if songBPM <= 0 || math.IsNaN(songBPM) {
		return DefaultBPM
	}
	return songBPM
}

// Beats converts a duration into a (fractional) number of beats at bpm.
func Beats(d time.Duration, bpm float64) float64 {
	return float64(d) / float64(BeatDuration(bpm))
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
