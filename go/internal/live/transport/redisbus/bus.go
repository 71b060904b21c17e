package redisbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/transport"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultPrefix = "live"

// Bus is a Transport over Redis PUBLISH/SUBSCRIBE. Redis echoes a publisher's messages
// back to its own subscriptions, so messages carrying ClientID as sender are dropped here.
type Bus struct {
	client   goredis.UniversalClient
	prefix   string
	clientID string

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ transport.Transport = (*Bus)(nil)

// New wraps an existing client. clientID may be empty to disable echo filtering.
func New(client goredis.UniversalClient, prefix, clientID string) *Bus {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Bus{
		client:   client,
		prefix:   prefix,
		clientID: clientID,
		subs:     make(map[*subscription]struct{}),
	}
}

// Connect dials addr and verifies it with a PING.
func Connect(ctx context.Context, addr, prefix, clientID string) (*Bus, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("connected to Redis")
	return New(client, prefix, clientID), nil
}

// Channel returns the pub/sub channel of a session.
func (b *Bus) Channel(sessionID string) string {
	return b.prefix + ":" + sessionID
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bus) Publish(ctx context.Context, msg events.Message) error {
	if b.isClosed() {
		return transport.ErrClosed
	}
	payload, err := events.Encode(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.Channel(msg.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, sessionID string, handler transport.Handler) (transport.Subscription, error) {
	if b.isClosed() {
		return nil, transport.ErrClosed
	}

	channel := b.Channel(sessionID)
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to redis: %w", err)
	}

	sub := &subscription{bus: b, ps: ps, channel: channel, done: make(chan struct{})}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.consume(handler)
	return sub, nil
}

// Close drops every subscription. The client is closed too.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return b.client.Close()
}

type subscription struct {
	bus     *Bus
	ps      *goredis.PubSub
	channel string
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) consume(handler transport.Handler) {
	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok {
				_ = s.Unsubscribe()
				return
			}
			msg, err := events.Decode([]byte(m.Payload))
			if err != nil {
				log.Warn().Err(err).Str("channel", s.channel).Msg("discarding undecodable redis message")
				continue
			}
			if s.bus.clientID != "" && msg.SenderID == s.bus.clientID {
				continue
			}
			handler(msg)
		}
	}
}

// Done is closed on Unsubscribe or Close. go-redis re-subscribes by itself after
// network errors, so a dropped connection does not end the subscription.
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()

		close(s.done)
		if cerr := s.ps.Close(); cerr != nil {
			err = fmt.Errorf("close redis subscription %s: %w", s.channel, cerr)
		}
	})
	return err
}
