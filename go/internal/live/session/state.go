package session

import (
	"time"

	"github.com/mcdev12/setlist/go/internal/live/chords"
	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
)

// State is a read-only snapshot of a session, safe to hand to renderers.
type State struct {
	SessionID string `json:"session_id"`
	ClientID  string `json:"client_id"`
	Connected bool   `json:"connected"`

	Phase        string `json:"phase"`
	CountingDown bool   `json:"counting_down"`
	Countdown    int    `json:"countdown"` // beats left to display, 0 when not counting

	Position   setlist.Position `json:"position"`
	Progress   float64          `json:"progress"`
	ChordIndex int              `json:"chord_index"`
	SongTitle  string           `json:"song_title"`
	BPM        float64          `json:"bpm"`
	Block      setlist.Block    `json:"block"`
	Chords     []string         `json:"chords"` // current block, transposed
	Chord      string           `json:"chord"`  // active sub-chord, transposed
	NextBlock  *setlist.Block   `json:"next_block,omitempty"`

	Reference    Reference     `json:"reference"`
	Offset       time.Duration `json:"offset"`
	ClockSamples int           `json:"clock_samples"`

	Semitones    int             `json:"semitones"`
	ViewMode     events.ViewMode `json:"view_mode"`
	Locked       bool            `json:"locked"`
	Visible      bool            `json:"visible"`
	WakeLockHeld bool            `json:"wake_lock_held"`
	Fullscreen   bool            `json:"fullscreen"`
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// publishState rebuilds the snapshot from loop-owned state. Only the loop calls it.
func (s *Session) publishState() {
	block := s.engine.CurrentBlock()
	transposed := chords.TransposeAll(block.Chords, s.semitones)

	st := State{
		SessionID:    s.cfg.SessionID,
		ClientID:     s.cfg.ClientID,
		Connected:    s.connected,
		Phase:        s.engine.Phase().String(),
		Position:     s.engine.Position(),
		Progress:     s.engine.Progress(),
		ChordIndex:   s.engine.ChordIndex(),
		SongTitle:    s.engine.CurrentSong().Title,
		BPM:          s.engine.BPM(),
		Block:        block,
		Chords:       transposed,
		Reference:    s.ref,
		Offset:       s.clockSync.Offset(),
		ClockSamples: s.clockSync.Samples(),
		Semitones:    s.semitones,
		ViewMode:     s.viewMode,
		Locked:       s.locked,
		Visible:      s.visible,
		WakeLockHeld: s.platform.WakeLockHeld(),
		Fullscreen:   s.platform.Fullscreen(),
	}
	if s.countdown != nil {
		st.CountingDown = true
		st.Countdown = max(0, s.countdown.beatsLeft)
	}
	if i := st.ChordIndex; i >= 0 && i < len(transposed) {
		st.Chord = transposed[i]
	}
	if next, ok := s.engine.NextBlock(); ok {
		st.NextBlock = &next
	}

	s.stateMu.Lock()
	s.state = st
	observer := s.observer
	s.stateMu.Unlock()

	if observer != nil {
		observer(st)
	}
}
