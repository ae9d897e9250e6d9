// Package socket manages the client's single real-time connection to the
// platform: connect/disconnect keyed by the current credential, a typed
// publish/subscribe surface, and automatic reconnection with bounded backoff.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/cardtable/cardtable-go/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frame buffer per connection
	sendBuffer = 256
)

// Status is the observable state of the managed connection
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Frame is the wire format of the real-time channel: a named event with a
// JSON payload
type Frame struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of a subscribed event
type Handler func(data json.RawMessage)

// StatusHandler observes connection state transitions
type StatusHandler func(status Status)

// Config holds configuration for the connection manager
type Config struct {
	// URL is the websocket endpoint
	URL string
	// ReconnectMin is the initial reconnection delay
	ReconnectMin time.Duration
	// ReconnectMax caps the reconnection delay
	ReconnectMax time.Duration
	// ReconnectAttempts bounds automatic reconnection before the manager
	// surfaces a terminal disconnected state
	ReconnectAttempts int
	// HandshakeTimeout bounds the websocket dial
	HandshakeTimeout time.Duration
}

// DefaultConfig returns default connection manager configuration
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectMin:      1 * time.Second,
		ReconnectMax:      5 * time.Second,
		ReconnectAttempts: 5,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Conn is one live transport instance. The manager never holds more than one.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *Conn) stop() {
	c.once.Do(func() { close(c.closed) })
}

// Manager owns at most one live real-time connection at a time
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu         sync.Mutex
	conn       *Conn
	credential string
	deliberate bool

	nextSub    int
	subs       map[model.EventType]map[int]Handler
	statusSubs map[int]StatusHandler
}

// NewManager creates a connection manager. No connection is opened until
// Connect is called with a credential.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = DefaultConfig(cfg.URL).ReconnectMin
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = DefaultConfig(cfg.URL).ReconnectMax
	}
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = DefaultConfig(cfg.URL).ReconnectAttempts
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultConfig(cfg.URL).HandshakeTimeout
	}
	return &Manager{
		cfg:        cfg,
		dialer:     &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:     logger.With(slog.String("component", "socket")),
		subs:       make(map[model.EventType]map[int]Handler),
		statusSubs: make(map[int]StatusHandler),
	}
}

// Connect returns the existing connection if one is already open, otherwise
// establishes a new one authenticated with the credential. The handshake
// carries the credential as a bearer header.
func (m *Manager) Connect(ctx context.Context, credential string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return m.conn, nil
	}

	conn, err := m.dial(ctx, credential)
	if err != nil {
		return nil, err
	}

	m.credential = credential
	m.deliberate = false
	m.installLocked(conn)
	m.notifyStatusLocked(StatusConnected)
	m.logger.Info("connected", slog.String("url", m.cfg.URL))
	return conn, nil
}

// Disconnect tears down the current connection and clears the held
// reference. Safe to call when not connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.credential = ""
	m.deliberate = true
	if conn != nil {
		m.notifyStatusLocked(StatusDisconnected)
	}
	m.mu.Unlock()

	if conn == nil {
		return
	}
	conn.stop()
	_ = conn.ws.Close()
	m.logger.Info("disconnected")
}

// Emit sends a named event with a payload over the live connection
func (m *Manager) Emit(event model.EventType, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return model.ErrNotConnected
	}

	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		frame.Data = data
	}

	msg, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	select {
	case conn.send <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropping %s", event)
	}
}

// On subscribes a handler to a named event and returns its unsubscribe
// function. Subscriptions survive reconnection.
func (m *Manager) On(event model.EventType, handler Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[event] == nil {
		m.subs[event] = make(map[int]Handler)
	}
	id := m.nextSub
	m.nextSub++
	m.subs[event][id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[event], id)
	}
}

// OnStatus subscribes to connection state transitions and returns the
// unsubscribe function
func (m *Manager) OnStatus(handler StatusHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.statusSubs[id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.statusSubs, id)
	}
}

// Conn returns the currently held connection handle, nil when disconnected
func (m *Manager) Conn() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *Manager) dial(ctx context.Context, credential string) (*Conn, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	ws, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}, nil
}

// installLocked makes conn the held connection and starts its pumps.
// Caller holds m.mu.
func (m *Manager) installLocked(conn *Conn) {
	m.conn = conn
	go m.writePump(conn)
	go m.readPump(conn)
}

func (m *Manager) writePump(conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.closed:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (m *Manager) readPump(conn *Conn) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ws.ReadMessage()
		if err != nil {
			m.handleDrop(conn, err)
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			m.logger.Warn("discarding undecodable frame", slog.String("error", err.Error()))
			continue
		}
		m.dispatch(frame)
	}
}

// dispatch fans a frame out to its subscribers, in the read goroutine so
// delivery stays FIFO per connection
func (m *Manager) dispatch(frame Frame) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[frame.Event]))
	for _, h := range m.subs[frame.Event] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(frame.Data)
	}
}

// handleDrop runs when the read pump exits. A deliberate disconnect ends
// here; an unexpected drop starts the bounded reconnection loop.
func (m *Manager) handleDrop(conn *Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn || m.deliberate {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	credential := m.credential
	m.notifyStatusLocked(StatusReconnecting)
	m.mu.Unlock()

	conn.stop()
	_ = conn.ws.Close()
	m.logger.Warn("connection dropped", slog.String("error", cause.Error()))

	go m.reconnect(credential)
}

// reconnect retries the dial with exponential backoff until it succeeds,
// the attempt budget runs out, or the manager is deliberately disconnected
func (m *Manager) reconnect(credential string) {
	delay := &backoff.Backoff{
		Min:    m.cfg.ReconnectMin,
		Max:    m.cfg.ReconnectMax,
		Jitter: true,
	}

	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(delay.Duration())

		m.mu.Lock()
		if m.deliberate || m.conn != nil {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
		conn, err := m.dial(ctx, credential)
		cancel()
		if err != nil {
			m.logger.Warn("reconnect attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", m.cfg.ReconnectAttempts),
				slog.String("error", err.Error()))
			continue
		}

		m.mu.Lock()
		if m.deliberate {
			m.mu.Unlock()
			conn.stop()
			_ = conn.ws.Close()
			return
		}
		m.credential = credential
		m.installLocked(conn)
		m.notifyStatusLocked(StatusConnected)
		m.mu.Unlock()

		m.logger.Info("reconnected", slog.Int("attempt", attempt))
		return
	}

	m.mu.Lock()
	m.notifyStatusLocked(StatusDisconnected)
	m.mu.Unlock()
	m.logger.Error("reconnection attempts exhausted",
		slog.Int("attempts", m.cfg.ReconnectAttempts))
}

// notifyStatusLocked fans a status change out to subscribers.
// Caller holds m.mu; handlers run on their own goroutine to keep the lock
// short and the calling pump unblocked.
func (m *Manager) notifyStatusLocked(status Status) {
	for _, h := range m.statusSubs {
		go h(status)
	}
}
