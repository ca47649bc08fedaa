package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/liveops/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBufferSize = 256
)

// Client message types.
const (
	MessageSubscribe   = "SUBSCRIBE"
	MessageUnsubscribe = "UNSUBSCRIBE"
	MessagePing        = "PING"
	MessagePong        = "PONG"
)

var knownRooms = map[string]bool{
	domain.RoomDashboard:    true,
	domain.RoomCalls:        true,
	domain.RoomTickets:      true,
	domain.RoomOrganization: true,
	domain.RoomVoice:        true,
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan domain.HubEvent

	// User ID for this client.
	UserID uuid.UUID

	// Role of the authenticated operator.
	Role domain.Role

	// Permissions resolved from Role at connect time.
	Permissions domain.PermissionSet

	// Subscriptions maps room names to true.
	Subscriptions map[string]bool

	// sendMu guards Send against use after close
	sendMu sync.Mutex
	closed bool

	// mu protects Subscriptions map
	mu sync.RWMutex

	// logger for this client
	logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, role domain.Role, logger *slog.Logger) *Client {
	return &Client{
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan domain.HubEvent, sendBufferSize),
		UserID:        userID,
		Role:          role,
		Permissions:   domain.PermissionsFor(role),
		Subscriptions: make(map[string]bool),
		logger:        logger.With("user_id", userID.String()),
	}
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// trySend queues event without blocking. It returns false when the buffer
// is full or the channel has been closed.
func (c *Client) trySend(event domain.HubEvent) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- event:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closed
}

// AddSubscription adds a subscription to a room
func (c *Client) AddSubscription(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[room] = true
}

// RemoveSubscription removes a subscription from a room
func (c *Client) RemoveSubscription(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, room)
}

// HasSubscription checks if the client is subscribed to a room
func (c *Client) HasSubscription(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[room]
}

// GetSubscriptions returns a copy of all subscriptions
func (c *Client) GetSubscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.Subscriptions))
	for room := range c.Subscriptions {
		subs = append(subs, room)
	}
	return subs
}

// filter removes content the client's role may not see.
func (c *Client) filter(event domain.HubEvent) domain.HubEvent {
	if c.Permissions.CanViewTranscript {
		return event
	}
	switch p := event.Payload.(type) {
	case domain.LiveCallsSnapshot:
		calls := make([]domain.LiveCallSession, len(p.Calls))
		for i, call := range p.Calls {
			calls[i] = call.WithoutTranscript()
		}
		p.Calls = calls
		event.Payload = p
	case domain.LiveCallSession:
		event.Payload = p.WithoutTranscript()
	case domain.CallSnapshot:
		p.Transcript = nil
		event.Payload = p
	case json.RawMessage:
		if event.Type == domain.HubEventRealtime {
			event.Payload = stripRawTranscripts(event.Event, p)
		}
	}
	return event
}

// stripRawTranscripts removes transcripts from forwarded call events.
// Frames that cannot be decoded are withheld rather than sent unfiltered.
func stripRawTranscripts(category string, raw json.RawMessage) json.RawMessage {
	switch category {
	case domain.EventCallUpdate:
		return dropField(raw, "transcript")
	case domain.EventLiveCallsUpdate:
		var snap map[string]json.RawMessage
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil
		}
		var calls []json.RawMessage
		if len(snap["calls"]) > 0 {
			if err := json.Unmarshal(snap["calls"], &calls); err != nil {
				return nil
			}
		}
		for i, call := range calls {
			if calls[i] = dropField(call, "transcript"); calls[i] == nil {
				return nil
			}
		}
		if calls != nil {
			encoded, err := json.Marshal(calls)
			if err != nil {
				return nil
			}
			snap["calls"] = encoded
		}
		out, err := json.Marshal(snap)
		if err != nil {
			return nil
		}
		return out
	default:
		return raw
	}
}

func dropField(raw json.RawMessage, field string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil
	}
	delete(obj, field)
	out, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return out
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Leave(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON message to the websocket connection
func (c *Client) writeJSON(event domain.HubEvent) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribePayload is the payload for subscribe/unsubscribe messages
type SubscribePayload struct {
	Room string `json:"room"`
}

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case MessageSubscribe:
		c.handleSubscribe(msg.Payload)

	case MessageUnsubscribe:
		c.handleUnsubscribe(msg.Payload)

	case MessagePing:
		// Client-side keep-alive, respond with pong
		c.sendPong()

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) handleSubscribe(payload json.RawMessage) {
	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal subscribe payload", "error", err)
		return
	}

	if !knownRooms[p.Room] {
		c.logger.Warn("invalid room in subscribe request", "room", p.Room)
		return
	}

	c.Hub.subscribeClient(c, p.Room)
}

func (c *Client) handleUnsubscribe(payload json.RawMessage) {
	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal unsubscribe payload", "error", err)
		return
	}

	c.Hub.unsubscribeClient(c, p.Room)
}

func (c *Client) sendPong() {
	// A full or closed channel skips the pong.
	c.trySend(domain.HubEvent{Type: MessagePong})
}
