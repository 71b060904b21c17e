package stage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/session"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
	"github.com/rs/zerolog/log"
)

// ErrUnknownCommand is returned for input the console cannot parse.
var ErrUnknownCommand = errors.New("unknown command")

// Controller is the part of a session the console drives.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Goto(ctx context.Context, pos setlist.Position) error
	NextSong(ctx context.Context) error
	PrevSong(ctx context.Context) error
	JumpToSong(ctx context.Context, i int) error
	RestartBlock(ctx context.Context) error
	SetSemitones(ctx context.Context, semitones int) error
	SetViewMode(ctx context.Context, mode events.ViewMode) error
	SetLocked(ctx context.Context, locked bool) error
	SetVisible(ctx context.Context, visible bool) error
	SetBPMOverride(ctx context.Context, bpm float64) error
	Snapshot() session.State
}

var _ Controller = (*session.Session)(nil)

const usage = `commands:
  play | pause | toggle
  next | prev | song <i> | goto <song> <block> | restart
  semitones <n> | view <both|chords|lyrics> | bpm <n>
  lock | unlock | show | hide
  status | help`

// Console turns text commands into session operations.
type Console struct {
	ctrl Controller
	out  io.Writer
}

// NewConsole creates a console writing replies to out.
func NewConsole(ctrl Controller, out io.Writer) *Console {
	return &Console{ctrl: ctrl, out: out}
}

// Run executes one command per line of in until EOF or ctx is done. Command errors are
// logged and do not stop the loop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := c.Exec(ctx, line); err != nil {
				log.Warn().Err(err).Str("command", line).Msg("command failed")
			}
		}
	}
}

// Exec runs a single command line. Blank lines are ignored.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "play":
		return c.ctrl.Play(ctx)
	case "pause", "stop":
		return c.ctrl.Pause(ctx)
	case "toggle", "space":
		return c.ctrl.Toggle(ctx)
	case "next":
		return c.ctrl.NextSong(ctx)
	case "prev":
		return c.ctrl.PrevSong(ctx)
	case "restart":
		return c.ctrl.RestartBlock(ctx)
	case "lock":
		return c.ctrl.SetLocked(ctx, true)
	case "unlock":
		return c.ctrl.SetLocked(ctx, false)
	case "show":
		return c.ctrl.SetVisible(ctx, true)
	case "hide":
		return c.ctrl.SetVisible(ctx, false)
	case "song":
		n, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		return c.ctrl.JumpToSong(ctx, n[0])
	case "goto":
		n, err := intArgs(args, 2)
		if err != nil {
			return err
		}
		return c.ctrl.Goto(ctx, setlist.Position{Song: n[0], Block: n[1]})
	case "semitones":
		n, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		return c.ctrl.SetSemitones(ctx, n[0])
	case "view":
		if len(args) != 1 {
			return fmt.Errorf("view: want 1 argument, got %d", len(args))
		}
		return c.ctrl.SetViewMode(ctx, events.ViewMode(args[0]))
	case "bpm":
		if len(args) != 1 {
			return fmt.Errorf("bpm: want 1 argument, got %d", len(args))
		}
		bpm, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("bpm: %w", err)
		}
		return c.ctrl.SetBPMOverride(ctx, bpm)
	case "status":
		fmt.Fprintln(c.out, FormatState(c.ctrl.Snapshot()))
		return nil
	case "help", "?":
		fmt.Fprintln(c.out, usage)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func intArgs(args []string, want int) ([]int, error) {
	if len(args) != want {
		return nil, fmt.Errorf("want %d argument(s), got %d", want, len(args))
	}
	out := make([]int, want)
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = n
	}
	return out, nil
}

// FormatState renders a one-line status for the console.
func FormatState(st session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %q %s", st.Position, st.Phase, st.SongTitle, st.Block.Label())
	if st.CountingDown {
		fmt.Fprintf(&b, " countdown=%d", st.Countdown)
	}
	fmt.Fprintf(&b, " progress=%.0f%% bpm=%g", st.Progress*100, st.BPM)
	if st.Chord != "" {
		fmt.Fprintf(&b, " chord=%s", st.Chord)
	}
	if st.Semitones != 0 {
		fmt.Fprintf(&b, " semitones=%+d", st.Semitones)
	}
	switch {
	case st.Reference.IsReference:
		b.WriteString(" ref=self")
	case st.Reference.ReferenceID != "":
		fmt.Fprintf(&b, " ref=%s offset=%s", st.Reference.ReferenceID, st.Offset)
	}
	if !st.Connected {
		b.WriteString(" local")
	}
	if st.Locked {
		b.WriteString(" locked")
	}
	return b.String()
}
