package transport

import (
	"context"
	"errors"

	"github.com/mcdev12/setlist/go/internal/live/events"
)

// ErrClosed is returned when publishing on a transport that has been closed.
var ErrClosed = errors.New("transport closed")

// Handler receives messages from peers of a session. Handlers run on transport-owned
// goroutines and must not block; the session engine hands them to its own loop.
type Handler func(events.Message)

// Subscription is an active session subscription.
type Subscription interface {
	Unsubscribe() error
	// Done is closed once the subscription stops delivering, whether through
	// Unsubscribe or because the underlying link was lost.
	Done() <-chan struct{}
}

// Transport is a best-effort, unordered, at-most-once pub/sub channel scoped to a session.
// There is no acknowledgment, retry or persistence. Implementations should not deliver a
// client's own messages back to it, but the engine filters echoes by sender id regardless.
type Transport interface {
	Publish(ctx context.Context, msg events.Message) error
	Subscribe(ctx context.Context, sessionID string, handler Handler) (Subscription, error)
	Close() error
}

// Subject returns the NATS-style subject a session's messages travel on.
func Subject(prefix, sessionID string) string {
	return prefix + "." + sessionID
}
