package wsrelay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/setlist/go/internal/live/events"
	"github.com/mcdev12/setlist/go/internal/live/metrics"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for relay WebSocket connections
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int // per-connection outbound queue
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns default relay configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Relay fans every message a client sends out to all other connections of the same
// session. It never interprets payloads beyond checking the envelope.
type Relay struct {
	sessions map[string]map[*conn]bool
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   Config
	metrics  metrics.Collector

	relayCh chan relayMessage
}

type relayMessage struct {
	from *conn
	kind events.Kind
	data []byte
}

// conn is one client attached to a session.
type conn struct {
	id          string
	clientID    string
	sessionID   string
	ws          *websocket.Conn
	send        chan []byte
	relay       *Relay
	connectedAt time.Time
}

// NewRelay creates a relay. m may be nil.
func NewRelay(config Config, m metrics.Collector) *Relay {
	if m == nil {
		m = metrics.NoOp{}
	}
	d := DefaultConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = d.SendBuffer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = d.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = d.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = d.WriteTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = d.MaxMessageSize
	}
	return &Relay{
		sessions: make(map[string]map[*conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		metrics: m,
		relayCh: make(chan relayMessage, 1000),
	}
}

// Start processes relayed messages until ctx is done, then closes every connection.
func (r *Relay) Start(ctx context.Context) {
	log.Info().Msg("live relay started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("live relay shutting down")
			r.closeAll()
			return
		case msg := <-r.relayCh:
			r.fanOut(msg)
		}
	}
}

// Upgrade upgrades an HTTP request to a WebSocket attached to sessionID.
func (r *Relay) Upgrade(w http.ResponseWriter, req *http.Request, sessionID, clientID string) error {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}

	c := &conn{
		id:          uuid.New().String(),
		clientID:    clientID,
		sessionID:   sessionID,
		ws:          ws,
		send:        make(chan []byte, r.config.SendBuffer),
		relay:       r,
		connectedAt: time.Now(),
	}
	r.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("client_id", clientID).
		Str("session_id", sessionID).
		Msg("relay connection established")
	return nil
}

func (r *Relay) register(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[c.sessionID] == nil {
		r.sessions[c.sessionID] = make(map[*conn]bool)
	}
	r.sessions[c.sessionID][c] = true
	r.metrics.ConnectionOpened()
	r.metrics.SessionsActive(len(r.sessions))
}

func (r *Relay) unregister(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[c.sessionID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(r.sessions, c.sessionID)
	}
	r.metrics.ConnectionClosed()
	r.metrics.SessionsActive(len(r.sessions))

	log.Info().
		Str("connection_id", c.id).
		Str("client_id", c.clientID).
		Str("session_id", c.sessionID).
		Msg("relay connection closed")
}

// submit validates an inbound frame and queues it for fan-out.
func (r *Relay) submit(from *conn, data []byte) {
	msg, err := events.Decode(data)
	if err != nil {
		r.metrics.MessageDropped(metrics.DropMalformed)
		log.Debug().Err(err).Str("connection_id", from.id).Msg("dropping malformed frame")
		return
	}
	if msg.SessionID != from.sessionID {
		r.metrics.MessageDropped(metrics.DropWrongSession)
		log.Warn().
			Str("connection_id", from.id).
			Str("session_id", from.sessionID).
			Str("claimed_session_id", msg.SessionID).
			Msg("dropping frame for another session")
		return
	}

	select {
	case r.relayCh <- relayMessage{from: from, kind: msg.Kind, data: data}:
	default:
		r.metrics.MessageDropped(metrics.DropQueueFull)
		log.Warn().Str("session_id", from.sessionID).Msg("relay queue full, dropping message")
	}
}

func (r *Relay) fanOut(msg relayMessage) {
	// Sends never block, so they happen under the read lock; unregister closes send
	// channels under the write lock.
	var delivered int
	var slow []*conn
	r.mu.RLock()
	for c := range r.sessions[msg.from.sessionID] {
		if c == msg.from {
			continue
		}
		select {
		case c.send <- msg.data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range slow {
		r.metrics.MessageDropped(metrics.DropSlowConsumer)
		log.Warn().
			Str("connection_id", c.id).
			Str("client_id", c.clientID).
			Msg("connection send buffer full, closing connection")
		r.unregister(c)
		c.ws.Close()
	}

	r.metrics.MessageRelayed(string(msg.kind), delivered)
}

func (r *Relay) closeAll() {
	r.mu.RLock()
	var all []*conn
	for _, conns := range r.sessions {
		for c := range conns {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		r.unregister(c)
	}
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// Stats returns statistics about active connections
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{SessionConnections: make(map[string]int, len(r.sessions))}
	for id, conns := range r.sessions {
		st.TotalConnections += len(conns)
		st.SessionConnections[id] = len(conns)
	}
	st.ActiveSessions = len(r.sessions)
	return st
}

func (c *conn) writePump() {
	cfg := c.relay.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.relay.unregister(c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write relay message")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *conn) readPump() {
	cfg := c.relay.config
	defer func() {
		c.relay.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.relay.submit(c, data)
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}
