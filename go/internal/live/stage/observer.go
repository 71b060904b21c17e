package stage

import (
	"github.com/mcdev12/setlist/go/internal/live/session"
	"github.com/rs/zerolog"
)

// StateLogger is a session observer that logs what a performer would see change:
// countdown beats, block changes, reference handovers and connectivity. It runs on the
// session loop and keeps no locks.
type StateLogger struct {
	logger zerolog.Logger
	last   session.State
	seen   bool
}

// NewStateLogger creates an observer writing to logger.
func NewStateLogger(logger zerolog.Logger) *StateLogger {
	return &StateLogger{logger: logger}
}

// Observe is passed to Session.Observe.
func (l *StateLogger) Observe(st session.State) {
	prev := l.last
	first := !l.seen
	l.last, l.seen = st, true

	if first || st.Connected != prev.Connected {
		l.logger.Info().Bool("connected", st.Connected).Str("session_id", st.SessionID).Msg("sync link")
	}
	if st.Reference != prev.Reference && (st.Reference.IsReference || st.Reference.ReferenceID != "") {
		l.logger.Info().
			Bool("self", st.Reference.IsReference).
			Str("reference_id", st.Reference.ReferenceID).
			Msg("reference changed")
	}
	if st.CountingDown && (!prev.CountingDown || st.Countdown != prev.Countdown) {
		l.logger.Info().Int("beats", st.Countdown).Msg("countdown")
	}
	if st.Phase != prev.Phase {
		l.logger.Info().Str("phase", st.Phase).Str("position", st.Position.String()).Msg("phase changed")
	}
	if (!first && st.Position != prev.Position) || (first && st.Phase == "running") {
		e := l.logger.Info().
			Str("position", st.Position.String()).
			Str("song", st.SongTitle).
			Str("block", st.Block.Label()).
			Strs("chords", st.Chords)
		if st.NextBlock != nil {
			e = e.Str("next", st.NextBlock.Label())
		}
		e.Msg("block")
	}
}
