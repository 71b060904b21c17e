package events

import "time"

// Sync payload types shared by the session engine and every transport.
// Instants are carried as Unix milliseconds on the sender's clock.

// ViewMode selects what a stage display renders.
type ViewMode string

const (
	ViewBoth   ViewMode = "both"
	ViewChords ViewMode = "chords"
	ViewLyrics ViewMode = "lyrics"
)

// Valid reports whether m is one of the known view modes.
func (m ViewMode) Valid() bool {
	switch m {
	case ViewBoth, ViewChords, ViewLyrics:
		return true
	}
	return false
}

// StartPayload is the payload for a START message. MaestroStartAtMs is on the maestro's clock.
type StartPayload struct {
	MaestroID        string   `json:"maestro_id"`
	MaestroStartAtMs int64    `json:"maestro_start_at_ms"`
	BPM              float64  `json:"bpm"`
	BPMOverride      float64  `json:"bpm_override,omitempty"` // 0 means every song plays at its own tempo
	SongIndex        int      `json:"song_index"`
	BlockIndex       int      `json:"block_index"`
	SemitoneShift    int      `json:"semitone_shift"`
	ViewMode         ViewMode `json:"view_mode"`
}

// StartAt returns the maestro start instant as a time.Time (maestro clock).
func (p StartPayload) StartAt() time.Time {
	return time.UnixMilli(p.MaestroStartAtMs)
}

// PausePayload is the payload for a PAUSE message; it carries nothing beyond the envelope.
type PausePayload struct{}

// GotoPayload is the payload for a GOTO message
type GotoPayload struct {
	SongIndex  int `json:"song_index"`
	BlockIndex int `json:"block_index"`
}

// PingPayload is a clock probe. T0 is on the prober's clock.
type PingPayload struct {
	PingID string `json:"ping_id"`
	T0     int64  `json:"t0"`
}

// PongPayload answers a PING. T0 is echoed, T1 is on the reference's clock.
type PongPayload struct {
	PingID string `json:"ping_id"`
	T0     int64  `json:"t0"`
	T1     int64  `json:"t1"`
}
