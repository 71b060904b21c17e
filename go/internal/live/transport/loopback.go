package transport

import (
	"context"
	"sync"

	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/rs/zerolog/log"
)

const loopbackBuffer = 256

// Hub is an in-process broadcast bus. Every Endpoint attached to it behaves like a
// separate client; delivery is asynchronous and drops on full buffers like a real network.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*loopbackSub]bool // session id -> subscribers
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*loopbackSub]bool)}
}

// Endpoint returns a new client attachment to the hub.
func (h *Hub) Endpoint() *Endpoint {
	return &Endpoint{hub: h}
}

// Subscribers returns how many subscriptions a session currently has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Disconnect drops every subscription of a session as if the link to each client had
// failed. Endpoints stay usable and may subscribe again. It returns how many were dropped.
func (h *Hub) Disconnect(sessionID string) int {
	h.mu.RLock()
	subs := make([]*loopbackSub, 0, len(h.subs[sessionID]))
	for sub := range h.subs[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return len(subs)
}

func (h *Hub) add(sub *loopbackSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sub.sessionID] == nil {
		h.subs[sub.sessionID] = make(map[*loopbackSub]bool)
	}
	h.subs[sub.sessionID][sub] = true
}

func (h *Hub) remove(sub *loopbackSub) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[sub.sessionID]
	if !ok || !subs[sub] {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.sessionID)
	}
	return true
}

func (h *Hub) publish(from *Endpoint, msg events.Message) {
	h.mu.RLock()
	var targets []*loopbackSub
	for sub := range h.subs[msg.SessionID] {
		if sub.owner != from {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(msg)
	}
}

// Endpoint is one client's view of a Hub. It implements Transport.
type Endpoint struct {
	hub *Hub

	mu     sync.Mutex
	subs   []*loopbackSub
	closed bool
}

var _ Transport = (*Endpoint)(nil)

func (e *Endpoint) Publish(ctx context.Context, msg events.Message) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.hub.publish(e, msg)
	return nil
}

func (e *Endpoint) Subscribe(ctx context.Context, sessionID string, handler Handler) (Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	sub := &loopbackSub{
		owner:     e,
		sessionID: sessionID,
		handler:   handler,
		ch:        make(chan events.Message, loopbackBuffer),
		done:      make(chan struct{}),
	}
	e.subs = append(e.subs, sub)
	e.hub.add(sub)
	go sub.pump()
	return sub, nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.closed = true
	e.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return nil
}

func (e *Endpoint) forget(sub *loopbackSub) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

type loopbackSub struct {
	owner     *Endpoint
	sessionID string
	handler   Handler
	ch        chan events.Message
	done      chan struct{}
	once      sync.Once
}

func (s *loopbackSub) deliver(msg events.Message) {
	select {
	case <-s.done:
	case s.ch <- msg:
	default:
		log.Warn().
			Str("session_id", s.sessionID).
			Str("kind", string(msg.Kind)).
			Msg("loopback subscriber buffer full, dropping message")
	}
}

func (s *loopbackSub) pump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.ch:
			s.handler(msg)
		}
	}
}

func (s *loopbackSub) Unsubscribe() error {
	s.once.Do(func() {
		s.owner.hub.remove(s)
		s.owner.forget(s)
		close(s.done)
	})
	return nil
}

func (s *loopbackSub) Done() <-chan struct{} { return s.done }
