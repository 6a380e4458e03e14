package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventPublisher delivers workspace events to stream subscribers
type EventPublisher interface {
	Publish(workspaceID int32, event Event)
}

var _ EventPublisher = (*Hub)(nil)

// Publish broadcasts the event, then closes the subscriptions it revokes:
// a removed member loses their connections and a deleted workspace loses all
// of them. Subscribers receive the revoking event before their socket closes.
func (h *Hub) Publish(workspaceID int32, event Event) {
	h.Broadcast(workspaceID, event)

	switch {
	case event.Is(EntityTypeMember, EventTypeDeleted):
		if userID, ok := removedUserID(event.Payload); ok {
			h.DisconnectUser(workspaceID, userID)
		}
	case event.Is(EntityTypeWorkspace, EventTypeDeleted):
		h.DisconnectWorkspace(workspaceID)
	}
}

// removedUserID reads userId from a payload that is either a local value or
// one decoded from a relayed JSON envelope.
func removedUserID(payload interface{}) (uuid.UUID, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, false
	}
	var ref struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.Unmarshal(data, &ref); err != nil || ref.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return ref.UserID, true
}
