// Package realtime holds the client side of the event server connection.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorrc/liveops/internal/config"
	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
	"github.com/lorrc/liveops/internal/infrastructure/logging"
)

// Maximum inbound frame size. Live call snapshots carry full transcripts.
const maxMessageSize = 1 << 20

// Transport is the single shared connection to the event server. Inbound
// frames are re-emitted on the event bus under their own event name.
type Transport struct {
	cfg    config.RealtimeConfig
	bus    ports.EventBus
	creds  ports.CredentialSource
	dialer *websocket.Dialer
	logger *slog.Logger

	// connectMu serializes dialing so that Connect and the reconnect loop
	// never both install a connection.
	connectMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	connID   string
	attempts int
	stop     chan struct{} // closed by Disconnect

	writeMu sync.Mutex
}

var _ ports.RealtimeTransport = (*Transport)(nil)

// NewTransport creates a disconnected transport. creds may be nil.
func NewTransport(cfg config.RealtimeConfig, bus ports.EventBus, creds ports.CredentialSource, logger *slog.Logger) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = (cfg.PongWait * 9) / 10
	}
	return &Transport{
		cfg:    cfg,
		bus:    bus,
		creds:  creds,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger: logger.With("component", "realtime_transport"),
	}
}

// Connect dials the event server and joins the default rooms. It is a
// no-op while connected.
func (t *Transport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	if t.stop == nil {
		t.stop = make(chan struct{})
	}
	stop := t.stop
	t.attempts = 0
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	if !t.install(conn, stop) {
		_ = conn.Close()
		return apperrors.ErrNotConnected
	}
	return nil
}

// Disconnect closes the connection, stops any reconnect loop and clears
// connection state.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.connID = ""
	t.attempts = 0
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()

	if conn == nil {
		return
	}

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	_ = conn.Close()

	t.logger.Info("realtime disconnected")
}

// Subscribe sends a room-join request. While disconnected the request is
// dropped with a warning; default rooms are re-joined on every connect.
func (t *Transport) Subscribe(room string, params map[string]interface{}) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.logger.Warn("cannot subscribe while disconnected", "room", room)
		return
	}

	var data json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.logger.Warn("failed to encode subscribe params", "room", room, "error", err)
			return
		}
		data = raw
	}

	if err := t.write(conn, domain.Envelope{Event: domain.SubscribeEvent(room), Data: data}); err != nil {
		t.logger.Warn("failed to send subscribe", "room", room, "error", err)
	}
}

// SubscribeToOrganization joins the organization room for organizationID.
func (t *Transport) SubscribeToOrganization(organizationID string) {
	t.Subscribe(domain.RoomOrganization, map[string]interface{}{"organizationId": organizationID})
}

// Status reports the connection for status indicators.
func (t *Transport) Status() domain.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.ConnectionStatus{
		Connected:         t.conn != nil,
		ConnectionID:      t.connID,
		ReconnectAttempts: t.attempts,
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(t.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}

	if t.creds != nil {
		token, err := t.creds.Token(ctx)
		if err != nil {
			t.logger.Warn("failed to read credential", "error", err)
		} else if token != "" {
			q := target.Query()
			q.Set("token", token)
			target.RawQuery = q.Encode()
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(dialCtx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial realtime server: %w", err)
	}
	return conn, nil
}

// install adopts conn unless Disconnect ran (stop closed) or another
// connection is already installed.
func (t *Transport) install(conn *websocket.Conn, stop chan struct{}) bool {
	t.mu.Lock()
	select {
	case <-stop:
		t.mu.Unlock()
		return false
	default:
	}
	if t.conn != nil {
		t.mu.Unlock()
		return false
	}
	t.conn = conn
	t.connID = uuid.NewString()
	t.attempts = 0
	connID := t.connID
	t.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	})

	done := make(chan struct{})
	go t.readLoop(conn, stop, done)
	go t.pingLoop(conn, done)

	ctx := logging.WithConnectionID(context.Background(), connID)
	t.logger.InfoContext(ctx, "realtime connected", "url", t.cfg.URL)

	for _, room := range domain.DefaultRooms {
		t.Subscribe(room, nil)
	}
	return true
}

func (t *Transport) readLoop(conn *websocket.Conn, stop chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.conn != conn {
				// Disconnect already released this connection.
				t.mu.Unlock()
				return
			}
			t.conn = nil
			t.connID = ""
			t.mu.Unlock()
			_ = conn.Close()

			t.logger.Warn("realtime connection lost", "error", err)
			go t.reconnect(stop)
			return
		}

		t.handleFrame(message)
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// reconnect retries with a fixed delay until it succeeds, attempts run
// out, or Disconnect closes stop.
func (t *Transport) reconnect(stop chan struct{}) {
	for attempt := 1; attempt <= t.cfg.MaxReconnectAttempts; attempt++ {
		t.mu.Lock()
		if t.conn != nil {
			t.mu.Unlock()
			return
		}
		t.attempts = attempt
		t.mu.Unlock()

		select {
		case <-stop:
			return
		case <-time.After(t.cfg.ReconnectDelay):
		}

		t.logger.Info("reconnecting to realtime server", "attempt", attempt, "max_attempts", t.cfg.MaxReconnectAttempts)

		if t.tryReconnect(stop) {
			return
		}
	}

	select {
	case <-stop:
	default:
		t.logger.Error("realtime reconnect attempts exhausted", "attempts", t.cfg.MaxReconnectAttempts)
	}
}

func (t *Transport) tryReconnect(stop chan struct{}) bool {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	connected := t.conn != nil
	t.mu.Unlock()
	if connected {
		return true
	}

	conn, err := t.dial(context.Background())
	if err != nil {
		t.logger.Warn("realtime reconnect failed", "error", err)
		return false
	}
	if !t.install(conn, stop) {
		_ = conn.Close()
		return true
	}
	return true
}

func (t *Transport) handleFrame(message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		t.logger.Warn("failed to decode realtime frame", "error", err)
		return
	}
	if env.Event == "" {
		t.logger.Warn("realtime frame without event name")
		return
	}
	t.bus.Emit(env.Event, env.Data)
}

func (t *Transport) write(conn *websocket.Conn, v interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
