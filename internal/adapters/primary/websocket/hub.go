package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
)

// Hub maintains the set of active Clients and broadcasts messages to them.
type Hub struct {
	// Clients maps user IDs to their active connections
	// A single user can have multiple connections (multiple tabs/devices)
	clients map[uuid.UUID]map[*Client]bool

	// Rooms maps room names to subscribed clients
	rooms map[string]map[*Client]bool

	// Broadcast channel for events
	broadcast chan domain.HubEvent

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	// logger for the hub
	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.HubEvent, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for delivery. Events with an empty Room go to
// every connected client.
func (h *Hub) Broadcast(event domain.HubEvent) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"room", event.Room,
		)
		return nil
	}
}

// Run starts the hub's event loop until ctx is cancelled. Run it in its
// own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Join registers client. It returns false if the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. It does not block once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"role", client.Role,
		"total_connections", len(h.clients[client.UserID]),
	)
}

// unregisterClient removes a client from the hub and all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.removeLocked(client) {
		return
	}

	h.logger.Info("client unregistered",
		"user_id", client.UserID,
	)
}

// removeLocked drops client from every map and closes its send channel.
// It returns false if the client was not registered.
func (h *Hub) removeLocked(client *Client) bool {
	userClients, ok := h.clients[client.UserID]
	if !ok || !userClients[client] {
		return false
	}
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.clients, client.UserID)
	}

	for _, room := range client.GetSubscriptions() {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	client.CloseSend()
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for client := range userClients {
			h.removeLocked(client)
		}
	}
	h.logger.Info("hub stopped")
}

// broadcastEvent sends an event to the clients of its room
func (h *Hub) broadcastEvent(event domain.HubEvent) {
	h.mu.RLock()
	var clients []*Client
	if event.Room == "" {
		for _, userClients := range h.clients {
			for client := range userClients {
				clients = append(clients, client)
			}
		}
	} else {
		// Copy the client list to avoid holding the lock while sending
		for client := range h.rooms[event.Room] {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"room", event.Room,
		"client_count", len(clients),
	)

	var slow []*Client
	for _, client := range clients {
		if !client.trySend(client.filter(event)) {
			h.logger.Warn("client send buffer full, unregistering",
				"user_id", client.UserID,
			)
			slow = append(slow, client)
		}
	}

	// Run owns the Unregister channel, so slow clients are removed inline.
	for _, client := range slow {
		h.unregisterClient(client)
	}
}

// subscribeClient adds a client to a room
func (h *Hub) subscribeClient(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A removed client must not re-enter a room.
	if client.isClosed() {
		return
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.AddSubscription(room)

	h.logger.Debug("client subscribed to room",
		"user_id", client.UserID,
		"room", room,
	)
}

// unsubscribeClient removes a client from a room
func (h *Hub) unsubscribeClient(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.RemoveSubscription(room)

	h.logger.Debug("client unsubscribed from room",
		"user_id", client.UserID,
		"room", room,
	)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, userClients := range h.clients {
		count += len(userClients)
	}
	return count
}

// GetRoomCount returns the number of active rooms
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientsInRoom returns the number of clients subscribed to a room
func (h *Hub) GetClientsInRoom(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[userID]
	return ok && len(clients) > 0
}
