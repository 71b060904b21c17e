package natsbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/transport"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the NATS session bus
type Config struct {
	URL           string
	SubjectPrefix string // messages travel on "<prefix>.<session id>"
	Name          string // connection name shown in server monitoring
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default NATS bus configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "live.sync",
		Name:          "setlist-live",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Bus is a Transport over core NATS publish/subscribe: at-most-once, no persistence.
// The connection is opened with NoEcho so a client never hears its own messages.
type Bus struct {
	nc     *nats.Conn
	config Config

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

var _ transport.Transport = (*Bus)(nil)

// Connect dials NATS and returns a ready bus.
func Connect(cfg Config) (*Bus, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}

	b := &Bus{config: cfg, subs: make(map[*subscription]struct{})}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.NoEcho(),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Warn().Msg("NATS connection closed")
			b.endAll()
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b.nc = nc

	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", cfg.SubjectPrefix).Msg("connected to NATS")
	return b, nil
}

func (b *Bus) subject(sessionID string) string {
	return transport.Subject(b.config.SubjectPrefix, sessionID)
}

func (b *Bus) Publish(ctx context.Context, msg events.Message) error {
	if b.nc.IsClosed() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := events.Encode(msg)
	if err != nil {
		return err
	}

	err = b.nc.PublishMsg(&nats.Msg{
		Subject: b.subject(msg.SessionID),
		Data:    data,
		Header: nats.Header{
			"Kind":      []string{string(msg.Kind)},
			"Sender-ID": []string{msg.SenderID},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, sessionID string, handler transport.Handler) (transport.Subscription, error) {
	if b.nc.IsClosed() {
		return nil, transport.ErrClosed
	}

	subject := b.subject(sessionID)
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		msg, err := events.Decode(m.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("discarding undecodable NATS message")
			return
		}
		handler(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	// Make sure the server knows about the interest before the first publish.
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	s := &subscription{bus: b, sub: sub, done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	log.Debug().Str("subject", subject).Msg("subscribed to session")
	return s, nil
}

// Close drops every subscription and the connection.
func (b *Bus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	b.endAll()
	return nil
}

// endAll ends every subscription once the connection is gone for good. Reconnects
// within MaxReconnects keep subscriptions alive and do not end them.
func (b *Bus) endAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*subscription]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.end()
	}
}

// Conn exposes the underlying connection for health checks.
func (b *Bus) Conn() *nats.Conn { return b.nc }

type subscription struct {
	bus     *Bus
	sub     *nats.Subscription
	done    chan struct{}
	once    sync.Once
	endOnce sync.Once
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) end() {
	s.endOnce.Do(func() { close(s.done) })
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		defer s.end()

		if s.bus.nc.IsClosed() {
			return
		}
		if uerr := s.sub.Unsubscribe(); uerr != nil {
			err = fmt.Errorf("unsubscribe %s: %w", s.sub.Subject, uerr)
		}
	})
	return err
}
