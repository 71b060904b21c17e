package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/transport"
	"github.com/rs/zerolog/log"
)

// ErrNotJoined is returned when publishing to a session without a subscription; the
// subscription's socket is the only way to reach the relay.
var ErrNotJoined = errors.New("not subscribed to session")

const defaultWriteTimeout = 5 * time.Second

// Client is a Transport that talks to a Relay: one WebSocket per subscribed session.
type Client struct {
	baseURL  string
	clientID string
	dialer   *websocket.Dialer

	mu     sync.Mutex
	subs   map[string]*clientSub // session id -> subscription
	closed bool
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a relay client. baseURL is the relay's WebSocket endpoint, for
// example ws://localhost:8090/ws/live.
func NewClient(baseURL, clientID string) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		dialer:   websocket.DefaultDialer,
		subs:     make(map[string]*clientSub),
	}
}

func (c *Client) endpoint(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("client_id", c.clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Subscribe(ctx context.Context, sessionID string, handler transport.Handler) (transport.Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if _, ok := c.subs[sessionID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to session %s", sessionID)
	}
	c.mu.Unlock()

	endpoint, err := c.endpoint(sessionID)
	if err != nil {
		return nil, err
	}
	ws, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	sub := &clientSub{client: c, sessionID: sessionID, ws: ws, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return nil, transport.ErrClosed
	}
	c.subs[sessionID] = sub
	c.mu.Unlock()

	go sub.readLoop(handler)

	log.Info().Str("session_id", sessionID).Str("url", c.baseURL).Msg("joined relay session")
	return sub, nil
}

func (c *Client) Publish(ctx context.Context, msg events.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	sub, ok := c.subs[msg.SessionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotJoined, msg.SessionID)
	}

	data, err := events.Encode(msg)
	if err != nil {
		return err
	}
	return sub.write(ctx, data)
}

// Close leaves every session.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	subs := make([]*clientSub, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return nil
}

type clientSub struct {
	client    *Client
	sessionID string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	once      sync.Once
}

func (s *clientSub) write(ctx context.Context, data []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(deadline)
	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write to relay: %w", err)
	}
	return nil
}

func (s *clientSub) readLoop(handler transport.Handler) {
	defer s.Unsubscribe()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Warn().Err(err).Str("session_id", s.sessionID).Msg("relay connection lost")
			}
			return
		}
		msg, err := events.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("session_id", s.sessionID).Msg("discarding undecodable relay frame")
			continue
		}
		handler(msg)
	}
}

// Done is closed when the relay socket goes away, including after Unsubscribe.
func (s *clientSub) Done() <-chan struct{} { return s.done }

func (s *clientSub) Unsubscribe() error {
	s.once.Do(func() {
		s.client.mu.Lock()
		if s.client.subs[s.sessionID] == s {
			delete(s.client.subs, s.sessionID)
		}
		s.client.mu.Unlock()

		close(s.done)
		s.writeMu.Lock()
		s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.ws.Close()
	})
	return nil
}
