package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/setlist/go/internal/live/clocksync"
	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/platform"
	"github.com/mcdev12/setlist/go/internal/live/playback"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
	"github.com/mcdev12/setlist/go/internal/live/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrLocked  = errors.New("stage controls are locked")
	ErrClosed  = errors.New("session closed")
	ErrRunning = errors.New("session already running")
)

const (
	inboxSize    = 256
	defaultLead  = 8
	defaultProbe = 700 * time.Millisecond
	defaultFrame = 16 * time.Millisecond
)

// Config holds the tunables of one live session
type Config struct {
	SessionID string
	ClientID  string // generated when empty

	Alpha              float64       // EWMA weight for clock offset samples
	LeadBeats          float64       // how far in the future a START is scheduled, in beats
	ProbeInterval      time.Duration // PING period while following a reference
	FrameInterval      time.Duration // playback scheduling tick
	ImmediateThreshold time.Duration // pre-rolls shorter than this start at once
	MaxCountdownBeats  int
	PublishTimeout     time.Duration
	ConnectTimeout     time.Duration // bound on one attempt to join the session channel
	ReconnectMin       time.Duration // first retry delay after the link drops
	ReconnectMax       time.Duration
	AutoFullscreen     bool
}

// DefaultConfig returns default configuration for a session
func DefaultConfig(sessionID string) Config {
	return Config{
		SessionID:          sessionID,
		Alpha:              clocksync.DefaultAlpha,
		LeadBeats:          defaultLead,
		ProbeInterval:      defaultProbe,
		FrameInterval:      defaultFrame,
		ImmediateThreshold: playback.DefaultImmediateThreshold,
		MaxCountdownBeats:  playback.DefaultMaxCountdownBeats,
		PublishTimeout:     2 * time.Second,
		ConnectTimeout:     5 * time.Second,
		ReconnectMin:       500 * time.Millisecond,
		ReconnectMax:       30 * time.Second,
		AutoFullscreen:     true,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.SessionID)
	if c.ClientID == "" {
		c.ClientID = uuid.New().String()
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = d.Alpha
	}
	if c.LeadBeats <= 0 {
		c.LeadBeats = d.LeadBeats
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = d.ProbeInterval
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.ImmediateThreshold < 0 {
		c.ImmediateThreshold = d.ImmediateThreshold
	}
	if c.MaxCountdownBeats <= 0 {
		c.MaxCountdownBeats = d.MaxCountdownBeats
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = d.ReconnectMin
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = max(d.ReconnectMax, c.ReconnectMin)
	}
}

// Reference is this client's view of whose clock defines "now" for the session.
type Reference struct {
	IsReference bool   `json:"is_reference"`
	ReferenceID string `json:"reference_id,omitempty"`
}

type startKey struct {
	maestroID string
	startAtMs int64
}

type command struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Session is the synchronization engine for one client in one live session. All sync
// state lives on the instance and is mutated only by the Run loop; the exported
// methods hand work to that loop, so nothing is ever processed concurrently.
type Session struct {
	cfg      Config
	clock    clockwork.Clock
	bus      transport.Transport
	platform *platform.Tracker
	logger   zerolog.Logger

	// Owned by the Run loop.
	engine    *playback.Engine
	clockSync *clocksync.Estimator
	ref       Reference
	countdown *countdownState
	frame     clockwork.Ticker
	probe     clockwork.Ticker
	sub       transport.Subscription
	retry     clockwork.Timer
	backoff   *backoff.ExponentialBackOff
	connected bool
	suppress  bool
	lastStart startKey
	semitones int
	viewMode  events.ViewMode
	locked    bool
	visible   bool

	inbox   chan events.Message
	cmds    chan command
	done    chan struct{}
	started atomic.Bool

	stateMu  sync.RWMutex
	state    State
	observer func(State)
}

// New creates a session over sl. bus may be nil for a purely local session; clock may be
// nil for the real clock.
func New(cfg Config, sl setlist.Setlist, bus transport.Transport, hooks platform.Hooks, clock clockwork.Clock) (*Session, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	cfg.applyDefaults()

	engine, err := playback.NewEngine(sl)
	if err != nil {
		return nil, fmt.Errorf("create playback engine: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Session{
		cfg:       cfg,
		clock:     clock,
		bus:       bus,
		platform:  platform.NewTracker(hooks),
		logger:    log.With().Str("session_id", cfg.SessionID).Str("client_id", shortID(cfg.ClientID)).Logger(),
		engine:    engine,
		clockSync: clocksync.NewEstimator(cfg.Alpha),
		backoff:   newBackoff(cfg, clock),
		viewMode:  events.ViewBoth,
		visible:   true,
		inbox:     make(chan events.Message, inboxSize),
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
	s.publishState()
	return s, nil
}

// ClientID is this client's identity tag for the lifetime of the session.
func (s *Session) ClientID() string { return s.cfg.ClientID }

// Observe registers fn to receive every new snapshot. Must be called before Run.
func (s *Session) Observe(fn func(State)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.observer = fn
}

// Run joins the session and processes messages, commands and timers until ctx is done.
// Everything acquired here is released on return.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(s.done)

	s.connect(ctx)
	s.probe = s.clock.NewTicker(s.cfg.ProbeInterval)
	defer s.teardown()

	s.logger.Info().
		Bool("connected", s.connected).
		Int("songs", len(s.engine.Setlist().Songs)).
		Msg("live session started")
	s.publishState()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("live session shutting down")
			return nil
		case msg := <-s.inbox:
			s.handleMessage(ctx, msg)
		case cmd := <-s.cmds:
			err := cmd.fn(ctx)
			s.publishState()
			cmd.done <- err
		case <-s.probe.Chan():
			s.sendProbe(ctx)
		case <-s.beatChan():
			s.onBeat(ctx)
		case <-s.residualChan():
			s.onCountdownElapsed(ctx)
		case <-s.frameChan():
			s.onFrame(ctx)
		case <-s.linkChan():
			s.onLinkLost()
		case <-s.retryChan():
			s.onReconnect(ctx)
		}
		s.publishState()
	}
}

// enqueue runs on transport goroutines; it only hands messages to the loop.
func (s *Session) enqueue(msg events.Message) {
	if msg.SenderID == s.cfg.ClientID {
		return
	}
	select {
	case s.inbox <- msg:
	default:
		s.logger.Warn().Str("kind", string(msg.Kind)).Msg("inbox full, dropping message")
	}
}

func (s *Session) teardown() {
	ctx := context.Background()

	s.cancelCountdown()
	s.stopFrame()
	if s.probe != nil {
		s.probe.Stop()
		s.probe = nil
	}
	if s.retry != nil {
		stopAndDrainTimer(s.retry)
		s.retry = nil
	}
	s.engine.Stop()
	s.platform.ReleaseWakeLock(ctx)
	s.platform.ExitFullscreen(ctx)

	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Error().Err(err).Msg("failed to unsubscribe from session")
		}
		s.sub = nil
	}
	s.connected = false
	s.publishState()

	s.logger.Info().Msg("live session stopped")
}

// do runs fn on the loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play appoints this client as reference and schedules a synchronized start for everyone.
func (s *Session) Play(ctx context.Context) error { return s.do(ctx, s.play) }

// Pause stops playback here and on every peer.
func (s *Session) Pause(ctx context.Context) error { return s.do(ctx, s.pause) }

// Toggle pauses when playing or counting down, otherwise plays.
func (s *Session) Toggle(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.engine.Phase() == playback.Running || s.countdown != nil {
			return s.pause(ctx)
		}
		return s.play(ctx)
	})
}

// Goto re-points every client at pos without resuming playback.
func (s *Session) Goto(ctx context.Context, pos setlist.Position) error {
	return s.do(ctx, func(ctx context.Context) error { return s.goTo(ctx, pos) })
}

// NextSong jumps to the first block of the following song. On the last song it does nothing.
func (s *Session) NextSong(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error { return s.stepSong(ctx, 1) })
}

// PrevSong jumps to the first block of the previous song. On the first song it does nothing.
func (s *Session) PrevSong(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error { return s.stepSong(ctx, -1) })
}

// JumpToSong jumps to the first block of song i.
func (s *Session) JumpToSong(ctx context.Context, i int) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.goTo(ctx, setlist.Position{Song: i})
	})
}

// RestartBlock restarts the current block locally; peers are not told.
func (s *Session) RestartBlock(ctx context.Context) error { return s.do(ctx, s.restartBlock) }

// SetSemitones changes the local transposition. It travels with the next START.
func (s *Session) SetSemitones(ctx context.Context, semitones int) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.semitones = semitones
		return nil
	})
}

// SetViewMode changes the local view mode. It travels with the next START.
func (s *Session) SetViewMode(ctx context.Context, mode events.ViewMode) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !mode.Valid() {
			return fmt.Errorf("invalid view mode %q", mode)
		}
		s.viewMode = mode
		return nil
	})
}

// SetLocked locks or unlocks local controls. Locking stops local playback without
// telling peers.
func (s *Session) SetLocked(ctx context.Context, locked bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.locked = locked
		if locked {
			s.halt(ctx)
		}
		return nil
	})
}

// SetVisible tells the session whether the display is in the foreground.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.setVisible(ctx, visible)
		return nil
	})
}

// SetBPMOverride forces a tempo for every song; an out-of-range value clears it. Peers
// adopt it with the next START.
func (s *Session) SetBPMOverride(ctx context.Context, bpm float64) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.engine.SetBPMOverride(bpm)
		return nil
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
