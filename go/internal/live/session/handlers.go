package session

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/playback"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
	"github.com/mcdev12/setlist/go/internal/live/timing"
)

// handleMessage applies one peer message. Control broadcasts are suppressed while it
// runs so an incoming message can never be re-broadcast; protocol replies are not.
func (s *Session) handleMessage(ctx context.Context, msg events.Message) {
	if msg.SenderID == s.cfg.ClientID {
		return
	}
	if msg.SessionID != s.cfg.SessionID {
		s.logger.Debug().Str("other_session", msg.SessionID).Msg("ignoring message for another session")
		return
	}

	payload, err := events.ParsePayload(msg)
	if err != nil {
		s.logger.Warn().Err(err).Str("sender_id", shortID(msg.SenderID)).Msg("discarding malformed message")
		return
	}

	s.suppress = true
	defer func() { s.suppress = false }()

	switch p := payload.(type) {
	case events.StartPayload:
		s.handleStart(ctx, p)
	case events.PausePayload:
		s.logger.Debug().Str("sender_id", shortID(msg.SenderID)).Msg("received PAUSE")
		s.halt(ctx)
	case events.GotoPayload:
		s.handleGoto(ctx, p)
	case events.PingPayload:
		s.handlePing(ctx, p)
	case events.PongPayload:
		s.handlePong(p)
	}
}

func (s *Session) handleStart(ctx context.Context, p events.StartPayload) {
	key := startKey{maestroID: p.MaestroID, startAtMs: p.MaestroStartAtMs}
	if key == s.lastStart {
		s.logger.Debug().Str("maestro_id", shortID(p.MaestroID)).Msg("skipping duplicate START")
		return
	}
	pos := setlist.Position{Song: p.SongIndex, Block: p.BlockIndex}
	if !s.engine.Setlist().Contains(pos) {
		s.logger.Warn().Str("position", pos.String()).Msg("START points outside the setlist, ignoring")
		return
	}
	s.lastStart = key

	// Last writer wins: whoever sent the most recent START is the reference.
	s.ref = Reference{
		IsReference: p.MaestroID == s.cfg.ClientID,
		ReferenceID: p.MaestroID,
	}
	s.semitones = p.SemitoneShift
	// Every client plays at the reference's tempo, so block boundaries line up.
	s.engine.SetBPMOverride(p.BPMOverride)
	if p.ViewMode.Valid() {
		s.viewMode = p.ViewMode
	}

	s.halt(ctx)
	if _, err := s.engine.Seek(pos); err != nil {
		s.logger.Error().Err(err).Msg("failed to seek for START")
		return
	}

	target := p.StartAt()
	if !s.ref.IsReference {
		target = s.clockSync.ToLocal(target)
	}

	s.logger.Info().
		Str("maestro_id", shortID(p.MaestroID)).
		Str("position", pos.String()).
		Dur("offset", s.clockSync.Offset()).
		Time("local_target", target).
		Msg("received START")

	s.arm(ctx, target, timing.BeatDuration(p.BPM))
}

func (s *Session) handleGoto(ctx context.Context, p events.GotoPayload) {
	pos := setlist.Position{Song: p.SongIndex, Block: p.BlockIndex}
	if !s.engine.Setlist().Contains(pos) {
		s.logger.Warn().Str("position", pos.String()).Msg("GOTO points outside the setlist, ignoring")
		return
	}
	s.halt(ctx)
	changed, err := s.engine.Seek(pos)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to seek for GOTO")
		return
	}
	if changed {
		s.logger.Info().Str("position", pos.String()).Msg("received GOTO")
	}
}

func (s *Session) handlePing(ctx context.Context, p events.PingPayload) {
	if !s.ref.IsReference {
		return
	}
	pong := events.PongPayload{PingID: p.PingID, T0: p.T0, T1: s.clock.Now().UnixMilli()}
	s.reply(ctx, events.KindPong, pong)
}

func (s *Session) handlePong(p events.PongPayload) {
	sample, ok := s.clockSync.Observe(p, s.clock.Now())
	if !ok {
		return
	}
	s.logger.Debug().
		Dur("rtt", sample.RoundTrip).
		Dur("raw", sample.Raw).
		Dur("offset", sample.Smoothed).
		Msg("clock sample")
}

// sendProbe issues a PING when this client follows a known reference over a live transport.
func (s *Session) sendProbe(ctx context.Context) {
	if !s.connected || s.ref.ReferenceID == "" || s.ref.IsReference {
		return
	}
	ping := s.clockSync.NewPing(s.clock.Now())
	s.reply(ctx, events.KindPing, ping)
}

func (s *Session) play(ctx context.Context) error {
	if s.locked {
		return ErrLocked
	}
	if s.engine.Phase() == playback.Running || s.countdown != nil {
		return nil
	}
	if s.cfg.AutoFullscreen {
		s.platform.EnterFullscreen(ctx)
	}

	s.ref = Reference{IsReference: true, ReferenceID: s.cfg.ClientID}

	bpm := s.engine.BPM()
	beat := timing.BeatDuration(bpm)
	lead := time.Duration(s.cfg.LeadBeats * float64(beat))
	// Millisecond precision is all the wire carries; keep the local target identical.
	target := time.UnixMilli(s.clock.Now().Add(lead).UnixMilli())
	pos := s.engine.Position()

	start := events.StartPayload{
		MaestroID:        s.cfg.ClientID,
		MaestroStartAtMs: target.UnixMilli(),
		BPM:              bpm,
		BPMOverride:      s.engine.BPMOverride(),
		SongIndex:        pos.Song,
		BlockIndex:       pos.Block,
		SemitoneShift:    s.semitones,
		ViewMode:         s.viewMode,
	}
	s.lastStart = startKey{maestroID: start.MaestroID, startAtMs: start.MaestroStartAtMs}
	s.broadcast(ctx, events.KindStart, start)

	s.logger.Info().
		Str("position", pos.String()).
		Float64("bpm", bpm).
		Time("start_at", target).
		Msg("broadcast START as reference")

	s.arm(ctx, target, beat)
	return nil
}

// stepSong moves delta songs away from the current one. Stepping past either end of the
// setlist is a silent no-op.
func (s *Session) stepSong(ctx context.Context, delta int) error {
	if s.locked {
		return ErrLocked
	}
	pos := setlist.Position{Song: s.engine.Position().Song + delta}
	if !s.engine.Setlist().Contains(pos) {
		return nil
	}
	return s.goTo(ctx, pos)
}

func (s *Session) pause(ctx context.Context) error {
	if s.locked {
		return ErrLocked
	}
	s.halt(ctx)
	s.broadcast(ctx, events.KindPause, events.PausePayload{})
	return nil
}

func (s *Session) goTo(ctx context.Context, pos setlist.Position) error {
	if s.locked {
		return ErrLocked
	}
	if !s.engine.Setlist().Contains(pos) {
		return fmt.Errorf("%w: %s", playback.ErrOutOfRange, pos)
	}
	s.halt(ctx)
	if _, err := s.engine.Seek(pos); err != nil {
		return err
	}
	s.broadcast(ctx, events.KindGoto, events.GotoPayload{SongIndex: pos.Song, BlockIndex: pos.Block})
	return nil
}

func (s *Session) restartBlock(ctx context.Context) error {
	if s.locked {
		return ErrLocked
	}
	s.engine.RestartBlock(s.clock.Now())
	return nil
}

func (s *Session) setVisible(ctx context.Context, visible bool) {
	s.visible = visible
	if !visible {
		s.platform.ReleaseWakeLock(ctx)
		return
	}
	if s.engine.Phase() == playback.Running {
		s.platform.AcquireWakeLock(ctx)
	}
}

// broadcast publishes a control message unless a peer message is being applied.
func (s *Session) broadcast(ctx context.Context, kind events.Kind, payload any) {
	if s.suppress {
		s.logger.Debug().Str("kind", string(kind)).Msg("suppressed broadcast while applying peer message")
		return
	}
	s.publish(ctx, kind, payload)
}

// reply publishes a protocol message. Suppression never applies.
func (s *Session) reply(ctx context.Context, kind events.Kind, payload any) {
	s.publish(ctx, kind, payload)
}

func (s *Session) publish(ctx context.Context, kind events.Kind, payload any) {
	if !s.connected {
		return
	}
	msg, err := events.New(kind, s.cfg.SessionID, s.cfg.ClientID, s.clock.Now(), payload)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to build message")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := s.bus.Publish(pubCtx, msg); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to publish")
	}
}
