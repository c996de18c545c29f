// Package stream maintains the persistent market-data websocket: socket
// authentication, a 30s heartbeat, bounded reconnection with exponential
// backoff, and resubscription of every epic that had listeners before a drop.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

// ErrStreamClosed is surfaced after reconnection attempts are exhausted.
// Fatal for the stream, not for the process.
var ErrStreamClosed = errors.New("stream: reconnect attempts exhausted")

const (
	heartbeatInterval    = 30 * time.Second
	maxReconnectAttempts = 5
	maxBackoff           = 30 * time.Second
)

// State is the channel manager's connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
)

// TokenSource provides the current session token for socket authentication.
// The broker client implements it.
type TokenSource interface {
	SecurityToken() string
}

// TickHandler receives normalized price updates.
type TickHandler func(market.Tick)

type clientFrame struct {
	Action string `json:"action"`
	Epic   string `json:"epic,omitempty"`
	Token  string `json:"token,omitempty"`
}

type serverFrame struct {
	Type      string  `json:"type"`
	Epic      string  `json:"epic"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// Manager owns one websocket connection and its subscriptions.
type Manager struct {
	URL    string
	dialer *websocket.Dialer
	tokens TokenSource

	// onFatal is invoked once when reconnection gives up.
	onFatal func(error)
	sleep   func(time.Duration)

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	handlers map[string][]TickHandler
	attempts int
	stopped  bool
	hbStop   chan struct{}
}

// NewManager builds a channel manager. onFatal may be nil.
func NewManager(url string, tokens TokenSource, onFatal func(error)) *Manager {
	if onFatal == nil {
		onFatal = func(err error) { log.Printf("stream: %v", err) }
	}
	return &Manager{
		URL:      url,
		dialer:   websocket.DefaultDialer,
		tokens:   tokens,
		onFatal:  onFatal,
		sleep:    time.Sleep,
		state:    StateDisconnected,
		handlers: make(map[string][]TickHandler),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the stream, authenticates the socket, starts the heartbeat,
// and spawns the read loop.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	m.stopped = false
	m.startHeartbeatLocked()
	m.mu.Unlock()

	go m.readLoop(ctx, conn)
	return nil
}

// dial opens the socket and authenticates it with the current session token.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := m.dialer.DialContext(ctx, m.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("stream dial: %w", err)
	}
	auth := clientFrame{Action: "auth", Token: m.tokens.SecurityToken()}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("stream auth: %w", err)
	}
	return conn, nil
}

// Subscribe registers a handler for an epic. The first handler for an epic
// sends the subscribe frame.
func (m *Manager) Subscribe(epic string, h TickHandler) error {
	m.mu.Lock()
	first := len(m.handlers[epic]) == 0
	m.handlers[epic] = append(m.handlers[epic], h)
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if first && connected && conn != nil {
		return conn.WriteJSON(clientFrame{Action: "subscribe", Epic: epic})
	}
	return nil
}

// Unsubscribe drops all handlers for an epic and tells the broker.
func (m *Manager) Unsubscribe(epic string) error {
	m.mu.Lock()
	delete(m.handlers, epic)
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && conn != nil {
		return conn.WriteJSON(clientFrame{Action: "unsubscribe", Epic: epic})
	}
	return nil
}

// Close tears the stream down. The handler registry is cleared synchronously,
// so no tick callback fires after Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopped = true
	m.state = StateDisconnected
	m.stopHeartbeatLocked()
	m.handlers = make(map[string][]TickHandler)
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.hbStop = stop
	conn := m.conn

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteJSON(clientFrame{Action: "ping"}); err != nil {
					return
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			stopped := m.stopped || m.conn != conn
			m.mu.Unlock()
			if stopped || ctx.Err() != nil {
				return
			}
			log.Printf("stream: read error: %v", err)
			m.reconnect(ctx)
			return
		}
		m.handleFrame(msg)
	}
}

// handleFrame normalizes an incoming frame. Unknown frame types are logged
// and dropped, never allowed to crash the handler.
func (m *Manager) handleFrame(msg []byte) {
	tick, ok, err := parseFrame(msg)
	if err != nil {
		log.Printf("stream: bad frame: %v", err)
		return
	}
	if !ok {
		return
	}

	m.mu.Lock()
	handlers := append([]TickHandler(nil), m.handlers[tick.Epic]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(tick)
	}
}

// parseFrame returns (tick, true, nil) for price frames, (zero, false, nil)
// for pong and other recognized non-price frames.
func parseFrame(msg []byte) (market.Tick, bool, error) {
	var f serverFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		return market.Tick{}, false, err
	}
	switch f.Type {
	case "price":
		return market.Tick{
			Epic:      f.Epic,
			Bid:       f.Bid,
			Ask:       f.Ask,
			Volume:    f.Volume,
			Timestamp: time.UnixMilli(f.Timestamp).UTC(),
		}, true, nil
	case "pong":
		return market.Tick{}, false, nil
	default:
		log.Printf("stream: dropping unrecognized frame type %q", f.Type)
		return market.Tick{}, false, nil
	}
}

// reconnect runs the bounded backoff loop. Subscriptions live in m.handlers,
// so every epic with active callbacks is resubscribed after a successful dial:
// the broker does not persist them across connections.
func (m *Manager) reconnect(ctx context.Context) {
	m.mu.Lock()
	m.state = StateReconnecting
	m.stopHeartbeatLocked()
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		if m.attempts >= maxReconnectAttempts {
			m.state = StateDisconnected
			m.mu.Unlock()
			m.onFatal(fmt.Errorf("%w: after %d attempts", ErrStreamClosed, maxReconnectAttempts))
			return
		}
		delay := nextBackoff(m.attempts)
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		m.sleep(delay)
		if ctx.Err() != nil {
			return
		}

		conn, err := m.dial(ctx)
		if err != nil {
			log.Printf("stream: reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.state = StateConnected
		m.attempts = 0
		epics := make([]string, 0, len(m.handlers))
		for epic := range m.handlers {
			epics = append(epics, epic)
		}
		m.startHeartbeatLocked()
		m.mu.Unlock()

		for _, epic := range epics {
			if err := conn.WriteJSON(clientFrame{Action: "subscribe", Epic: epic}); err != nil {
				log.Printf("stream: resubscribe %s failed: %v", epic, err)
			}
		}

		go m.readLoop(ctx, conn)
		return
	}
}

// nextBackoff computes the reconnect delay: min(1s * 2^attempts, 30s).
func nextBackoff(attempts int) time.Duration {
	d := time.Second << uint(attempts)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
