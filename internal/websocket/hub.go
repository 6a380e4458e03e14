package websocket

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrClientClosed is returned when attempting to send to a closed client
	ErrClientClosed = errors.New("client is closed")
	// ErrSlowConsumer is returned when a client's outbound buffer is full
	ErrSlowConsumer = errors.New("client send buffer is full")
)

// ClientInterface is one stream subscription as seen by the hub
type ClientInterface interface {
	ID() string
	UserID() uuid.UUID
	WorkspaceID() int32
	Send(data []byte) error
	Close() error
}

// Hub tracks stream subscriptions per workspace and fans events out to them.
// It is safe for concurrent use.
type Hub struct {
	// workspace ID -> client ID -> client
	workspaces map[int32]map[string]ClientInterface
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		workspaces: make(map[int32]map[string]ClientInterface),
	}
}

// Register adds a client under its workspace
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	workspaceID := client.WorkspaceID()
	if h.workspaces[workspaceID] == nil {
		h.workspaces[workspaceID] = make(map[string]ClientInterface)
	}
	h.workspaces[workspaceID][client.ID()] = client

	log.Debug().
		Int32("workspace_id", workspaceID).
		Str("user_id", client.UserID().String()).
		Str("client_id", client.ID()).
		Msg("Stream subscriber registered")
}

// Unregister removes a client. Unknown clients are ignored.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	removed := h.removeLocked(client.WorkspaceID(), client.ID())
	h.mu.Unlock()

	if removed {
		log.Debug().
			Int32("workspace_id", client.WorkspaceID()).
			Str("client_id", client.ID()).
			Msg("Stream subscriber unregistered")
	}
}

func (h *Hub) removeLocked(workspaceID int32, clientID string) bool {
	clients, ok := h.workspaces[workspaceID]
	if !ok {
		return false
	}
	if _, exists := clients[clientID]; !exists {
		return false
	}
	delete(clients, clientID)
	if len(clients) == 0 {
		delete(h.workspaces, workspaceID)
	}
	return true
}

// snapshot copies the subscribers of a workspace so sends happen without the lock
func (h *Hub) snapshot(workspaceID int32) []ClientInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.workspaces[workspaceID]
	out := make([]ClientInterface, 0, len(clients))
	for _, client := range clients {
		out = append(out, client)
	}
	return out
}

// Broadcast sends an event to every subscriber of a workspace.
// Subscribers that cannot keep up are dropped.
func (h *Hub) Broadcast(workspaceID int32, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Int32("workspace_id", workspaceID).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	clients := h.snapshot(workspaceID)
	if len(clients) == 0 {
		return
	}

	for _, client := range clients {
		err := client.Send(data)
		switch {
		case err == nil:
		case errors.Is(err, ErrSlowConsumer):
			log.Warn().
				Int32("workspace_id", workspaceID).
				Str("client_id", client.ID()).
				Msg("Dropping slow stream subscriber")
			h.Unregister(client)
			client.Close()
		default:
			log.Debug().
				Err(err).
				Int32("workspace_id", workspaceID).
				Str("client_id", client.ID()).
				Msg("Failed to send to stream subscriber")
		}
	}

	log.Debug().
		Int32("workspace_id", workspaceID).
		Str("event_type", event.Type).
		Int("client_count", len(clients)).
		Msg("Broadcast event")
}

// DisconnectUser closes every subscription userID holds on a workspace.
// It returns the number of connections closed.
func (h *Hub) DisconnectUser(workspaceID int32, userID uuid.UUID) int {
	return h.evict(workspaceID, func(c ClientInterface) bool { return c.UserID() == userID })
}

// DisconnectWorkspace closes every subscription on a workspace
func (h *Hub) DisconnectWorkspace(workspaceID int32) int {
	return h.evict(workspaceID, func(ClientInterface) bool { return true })
}

// CloseAll closes every subscription, for shutdown
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	ids := make([]int32, 0, len(h.workspaces))
	for id := range h.workspaces {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	closed := 0
	for _, id := range ids {
		closed += h.DisconnectWorkspace(id)
	}
	return closed
}

func (h *Hub) evict(workspaceID int32, match func(ClientInterface) bool) int {
	h.mu.Lock()
	var evicted []ClientInterface
	for id, client := range h.workspaces[workspaceID] {
		if match(client) {
			evicted = append(evicted, client)
			h.removeLocked(workspaceID, id)
		}
	}
	h.mu.Unlock()

	for _, client := range evicted {
		client.Close()
	}
	if len(evicted) > 0 {
		log.Info().
			Int32("workspace_id", workspaceID).
			Int("client_count", len(evicted)).
			Msg("Revoked stream subscriptions")
	}
	return len(evicted)
}

// ClientCount returns the number of clients connected to a workspace
func (h *Hub) ClientCount(workspaceID int32) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workspaces[workspaceID])
}

// TotalClientCount returns the number of connected clients across all workspaces
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.workspaces {
		total += len(clients)
	}
	return total
}
