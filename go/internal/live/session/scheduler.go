package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/setlist/go/internal/live/playback"
)

// countdownState is the pre-roll in flight. Exactly one of ticker and residual is set:
// the beat ticker while beats are still being shown, the residual timer for the tail.
type countdownState struct {
	plan      playback.Countdown
	beatsLeft int
	ticker    clockwork.Ticker
	residual  clockwork.Timer
}

// arm cancels any countdown in flight and schedules playback to begin at localTarget.
func (s *Session) arm(ctx context.Context, localTarget time.Time, beat time.Duration) {
	s.cancelCountdown()

	now := s.clock.Now()
	plan := playback.PlanCountdown(localTarget, now, beat, s.cfg.ImmediateThreshold, s.cfg.MaxCountdownBeats)
	if plan.Immediate {
		s.logger.Debug().
			Time("local_target", localTarget).
			Dur("to_start", localTarget.Sub(now)).
			Msg("start is imminent, skipping countdown")
		s.startPlayback(ctx, localTarget)
		return
	}

	s.countdown = &countdownState{
		plan:      plan,
		beatsLeft: plan.Beats,
		ticker:    s.clock.NewTicker(beat),
	}
	s.logger.Debug().
		Time("local_target", localTarget).
		Int("beats", plan.Beats).
		Dur("beat", beat).
		Msg("countdown armed")
}

// onBeat decrements the displayed countdown. When it reaches zero the remaining time to
// the exact target is waited out with a one-shot timer.
func (s *Session) onBeat(ctx context.Context) {
	cd := s.countdown
	if cd == nil || cd.ticker == nil {
		return
	}
	cd.beatsLeft--
	if cd.beatsLeft > 0 {
		return
	}

	cd.ticker.Stop()
	cd.ticker = nil

	residual := cd.plan.Residual(s.clock.Now())
	if residual > 0 {
		cd.residual = s.clock.NewTimer(residual)
		return
	}
	s.onCountdownElapsed(ctx)
}

func (s *Session) onCountdownElapsed(ctx context.Context) {
	cd := s.countdown
	if cd == nil {
		return
	}
	s.countdown = nil
	s.startPlayback(ctx, cd.plan.LocalTarget)
}

// cancelCountdown stops both countdown timers. Safe to call with nothing armed.
func (s *Session) cancelCountdown() {
	cd := s.countdown
	if cd == nil {
		return
	}
	if cd.ticker != nil {
		cd.ticker.Stop()
	}
	if cd.residual != nil {
		stopAndDrainTimer(cd.residual)
	}
	s.countdown = nil
	s.logger.Debug().Msg("countdown cancelled")
}

func (s *Session) startPlayback(ctx context.Context, epoch time.Time) {
	s.engine.Start(epoch)
	if s.visible {
		s.platform.AcquireWakeLock(ctx)
	}
	s.startFrame()

	s.logger.Info().
		Str("position", s.engine.Position().String()).
		Time("epoch", epoch).
		Float64("bpm", s.engine.BPM()).
		Msg("playback started")
}

func (s *Session) startFrame() {
	s.stopFrame()
	s.frame = s.clock.NewTicker(s.cfg.FrameInterval)
}

func (s *Session) stopFrame() {
	if s.frame != nil {
		s.frame.Stop()
		s.frame = nil
	}
}

// onFrame runs one scheduling iteration of the playback engine.
func (s *Session) onFrame(ctx context.Context) {
	res := s.engine.Step(s.clock.Now())

	if res.Resynced {
		s.logger.Warn().Str("position", res.Position.String()).Msg("late resume, block restarted")
	}
	if res.Advanced {
		evt := s.logger.Debug()
		if res.SongChanged {
			evt = s.logger.Info()
		}
		evt.Str("position", res.Position.String()).Bool("song_changed", res.SongChanged).Msg("advanced to next block")
	}
	if res.Finished {
		s.logger.Info().Msg("setlist finished")
		s.halt(ctx)
	}
}

// halt cancels every playback timer and returns the engine to Idle, keeping the cursor.
func (s *Session) halt(ctx context.Context) {
	s.cancelCountdown()
	s.stopFrame()
	s.engine.Stop()
	s.platform.ReleaseWakeLock(ctx)
}

// A nil channel blocks forever, so inactive timers simply never fire in Run's select.
func (s *Session) beatChan() <-chan time.Time {
	if s.countdown == nil || s.countdown.ticker == nil {
		return nil
	}
	return s.countdown.ticker.Chan()
}

func (s *Session) residualChan() <-chan time.Time {
	if s.countdown == nil || s.countdown.residual == nil {
		return nil
	}
	return s.countdown.residual.Chan()
}

func (s *Session) frameChan() <-chan time.Time {
	if s.frame == nil {
		return nil
	}
	return s.frame.Chan()
}

// stopAndDrainTimer stops a timer and drains a pending fire so it cannot be observed later.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
