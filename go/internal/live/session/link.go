package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

func newBackoff(cfg Config, clock clockwork.Clock) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectMin
	b.MaxInterval = cfg.ReconnectMax
	b.MaxElapsedTime = 0 // keep trying for the whole show
	b.Clock = clock
	b.Reset()
	return b
}

// connect joins the session channel. Failure is not fatal: the session keeps working
// against its own clock, reports itself disconnected and retries in the background.
func (s *Session) connect(ctx context.Context) {
	if s.bus == nil {
		s.logger.Info().Msg("no transport configured, running in local mode")
		return
	}
	if !s.subscribe(ctx) {
		s.logger.Warn().Msg("transport unavailable, running in local mode")
		s.scheduleReconnect()
	}
}

func (s *Session) subscribe(ctx context.Context) bool {
	joinCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	sub, err := s.bus.Subscribe(joinCtx, s.cfg.SessionID, s.enqueue)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to join session channel")
		return false
	}
	s.sub = sub
	s.connected = true
	return true
}

// onLinkLost runs when the transport ends the subscription on its own. Playback goes on
// locally; the reference and clock offset are kept for when the link comes back.
func (s *Session) onLinkLost() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Unsubscribe(); err != nil {
		s.logger.Debug().Err(err).Msg("cleanup of lost subscription failed")
	}
	s.sub = nil
	s.connected = false
	s.logger.Warn().Msg("sync link lost, continuing on local clock")
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	if s.bus == nil || s.retry != nil {
		return
	}
	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = s.cfg.ReconnectMax
	}
	s.retry = s.clock.NewTimer(delay)
	s.logger.Debug().Dur("retry_in", delay).Msg("transport reconnect scheduled")
}

func (s *Session) onReconnect(ctx context.Context) {
	s.retry = nil
	if !s.subscribe(ctx) {
		s.scheduleReconnect()
		return
	}
	s.backoff.Reset()
	s.logger.Info().Msg("sync link restored")
}

// linkChan is nil while there is no subscription to watch.
func (s *Session) linkChan() <-chan struct{} {
	if s.sub == nil {
		return nil
	}
	return s.sub.Done()
}

func (s *Session) retryChan() <-chan time.Time {
	if s.retry == nil {
		return nil
	}
	return s.retry.Chan()
}
