package platform

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hooks are the best-effort device capabilities used during a live performance.
// Implementations may fail; callers log and carry on.
type Hooks interface {
	RequestWakeLock(ctx context.Context) error
	ReleaseWakeLock(ctx context.Context) error
	EnterFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// Noop is used when the device exposes none of the capabilities.
type Noop struct{}

func (Noop) RequestWakeLock(ctx context.Context) error { return nil }
func (Noop) ReleaseWakeLock(ctx context.Context) error { return nil }
func (Noop) EnterFullscreen(ctx context.Context) error { return nil }
func (Noop) ExitFullscreen(ctx context.Context) error  { return nil }

// Logging only records the requests, handy for headless stage clients.
type Logging struct{}

func (Logging) RequestWakeLock(ctx context.Context) error {
	log.Info().Msg("stay-awake requested")
	return nil
}

func (Logging) ReleaseWakeLock(ctx context.Context) error {
	log.Info().Msg("stay-awake released")
	return nil
}

func (Logging) EnterFullscreen(ctx context.Context) error {
	log.Info().Msg("fullscreen requested")
	return nil
}

func (Logging) ExitFullscreen(ctx context.Context) error {
	log.Info().Msg("fullscreen exited")
	return nil
}

// Tracker wraps Hooks so acquire/release are idempotent and failures never surface.
type Tracker struct {
	hooks Hooks

	mu         sync.Mutex
	wakeHeld   bool
	fullscreen bool
}

// NewTracker wraps hooks; nil means Noop.
func NewTracker(hooks Hooks) *Tracker {
	if hooks == nil {
		hooks = Noop{}
	}
	return &Tracker{hooks: hooks}
}

// AcquireWakeLock requests stay-awake unless it is already held.
func (t *Tracker) AcquireWakeLock(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wakeHeld {
		return
	}
	if err := t.hooks.RequestWakeLock(ctx); err != nil {
		log.Warn().Err(err).Msg("stay-awake unavailable, screen may sleep")
		return
	}
	t.wakeHeld = true
}

// ReleaseWakeLock releases stay-awake if held.
func (t *Tracker) ReleaseWakeLock(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.wakeHeld {
		return
	}
	t.wakeHeld = false
	if err := t.hooks.ReleaseWakeLock(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to release stay-awake")
	}
}

// EnterFullscreen asks for fullscreen unless already there.
func (t *Tracker) EnterFullscreen(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fullscreen {
		return
	}
	if err := t.hooks.EnterFullscreen(ctx); err != nil {
		log.Debug().Err(err).Msg("fullscreen unavailable")
		return
	}
	t.fullscreen = true
}

// ExitFullscreen leaves fullscreen if entered.
func (t *Tracker) ExitFullscreen(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fullscreen {
		return
	}
	t.fullscreen = false
	if err := t.hooks.ExitFullscreen(ctx); err != nil {
		log.Debug().Err(err).Msg("failed to exit fullscreen")
	}
}

// WakeLockHeld reports whether stay-awake is currently held.
func (t *Tracker) WakeLockHeld() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wakeHeld
}

// Fullscreen reports whether fullscreen is currently on.
func (t *Tracker) Fullscreen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fullscreen
}
