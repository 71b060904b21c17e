package playback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mcdev12/setlist/go/internal/live/setlist"
	"github.com/mcdev12/setlist/go/internal/live/timing"
)

// ErrOutOfRange is returned when a position does not address a block of the setlist.
var ErrOutOfRange = errors.New("position out of range")

// resumeGuard is how far past its expected duration a block may run before the engine
// assumes it was suspended and restarts the block instead of cascading advances.
const resumeGuard = 1.5

// Phase of the progress engine.
type Phase int

const (
	Idle Phase = iota
	Running
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StepResult reports what one scheduling iteration did.
type StepResult struct {
	Position     setlist.Position
	Progress     float64
	ChordIndex   int
	ChordChanged bool
	Advanced     bool // moved to another block
	SongChanged  bool
	Finished     bool // final block of the final song completed, engine is Idle
	Resynced     bool // late resume detected, current block restarted
}

// Engine advances through a setlist purely from elapsed wall-clock time. It holds no
// timers of its own: the caller supplies "now" on every Step, one call per frame.
type Engine struct {
	setlist setlist.Setlist

	pos      setlist.Position
	phase    Phase
	epoch    time.Time
	hasEpoch bool
	progress float64
	chord    int

	bpmOverride float64
}

// NewEngine creates an idle engine positioned at the first block of sl.
func NewEngine(sl setlist.Setlist) (*Engine, error) {
	if err := sl.Validate(); err != nil {
		return nil, err
	}
	return &Engine{setlist: sl}, nil
}

// Start enters Running with the given epoch as the start of the current block.
func (e *Engine) Start(epoch time.Time) {
	e.phase = Running
	e.epoch = epoch
	e.hasEpoch = true
	e.progress = 0
	e.chord = 0
}

// Stop returns to Idle, clearing the epoch and any in-flight progress.
func (e *Engine) Stop() {
	e.phase = Idle
	e.epoch = time.Time{}
	e.hasEpoch = false
	e.progress = 0
	e.chord = 0
}

// Seek stops the engine and re-points the cursor. It never resumes playback.
// changed is false when the engine was already idle, at rest, on pos.
func (e *Engine) Seek(pos setlist.Position) (changed bool, err error) {
	if !e.setlist.Contains(pos) {
		return false, fmt.Errorf("%w: %s", ErrOutOfRange, pos)
	}
	changed = pos != e.pos || e.phase != Idle || e.hasEpoch || e.progress != 0
	e.Stop()
	e.pos = pos
	return changed, nil
}

// RestartBlock restarts the current block from zero at now.
func (e *Engine) RestartBlock(now time.Time) {
	e.progress = 0
	e.chord = 0
	if e.phase == Running {
		e.epoch = now
		e.hasEpoch = true
	}
}

// SetBPMOverride forces a tempo for every song. Values outside the sane range clear it.
func (e *Engine) SetBPMOverride(bpm float64) {
	e.bpmOverride = bpm
}

// BPMOverride returns the forced tempo, 0 when none is set.
func (e *Engine) BPMOverride() float64 { return e.bpmOverride }

// Step runs one scheduling iteration.
func (e *Engine) Step(now time.Time) StepResult {
	res := StepResult{Position: e.pos, Progress: e.progress, ChordIndex: e.chord}
	if e.phase != Running {
		return res
	}

	block, _ := e.setlist.Block(e.pos)
	dur := e.BlockDuration()

	if !e.hasEpoch {
		e.epoch = now
		e.hasEpoch = true
	}

	elapsed := now.Sub(e.epoch)
	if float64(elapsed) > float64(dur)*resumeGuard {
		e.epoch = now
		elapsed = 0
		res.Resynced = true
	}

	e.progress = math.Max(0, math.Min(1, float64(elapsed)/float64(dur)))

	n := max(1, len(block.Chords))
	sub := min(n-1, int(math.Floor(e.progress*float64(n))))
	if sub != e.chord {
		e.chord = sub
		res.ChordChanged = true
	}

	if e.progress >= 1 {
		next, ok := e.setlist.Next(e.pos)
		if !ok {
			e.Stop()
			res.Finished = true
			res.Progress = 1
			res.ChordIndex = 0
			return res
		}
		res.SongChanged = next.Song != e.pos.Song
		res.Advanced = true
		e.pos = next
		// Anchor the next block to now, not to the ideal boundary, so drift cannot compound.
		e.epoch = now
		e.progress = 0
		e.chord = 0
	}

	res.Position = e.pos
	res.Progress = e.progress
	res.ChordIndex = e.chord
	return res
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase { return e.phase }

// Position returns the timeline cursor.
func (e *Engine) Position() setlist.Position { return e.pos }

// Progress returns the fraction [0,1] of the current block already played.
func (e *Engine) Progress() float64 { return e.progress }

// ChordIndex returns which chord of the current block is active.
func (e *Engine) ChordIndex() int { return e.chord }

// Epoch returns when the current block began, if playback has an epoch.
func (e *Engine) Epoch() (time.Time, bool) { return e.epoch, e.hasEpoch }

// Setlist returns the setlist being played.
func (e *Engine) Setlist() setlist.Setlist { return e.setlist }

// CurrentSong returns the song under the cursor.
func (e *Engine) CurrentSong() setlist.Song { return e.setlist.Songs[e.pos.Song] }

// CurrentBlock returns the block under the cursor.
func (e *Engine) CurrentBlock() setlist.Block {
	b, _ := e.setlist.Block(e.pos)
	return b
}

// NextBlock previews the block that follows, crossing into the next song.
func (e *Engine) NextBlock() (setlist.Block, bool) {
	next, ok := e.setlist.Next(e.pos)
	if !ok {
		return setlist.Block{}, false
	}
	return e.setlist.Block(next)
}

// BPM is the tempo in effect for the current song.
func (e *Engine) BPM() float64 {
	return timing.EffectiveBPM(e.CurrentSong().BPM, e.bpmOverride)
}

// BlockDuration is the duration of the current block at the effective tempo.
func (e *Engine) BlockDuration() time.Duration {
	return e.CurrentBlock().Duration(e.BPM())
}
