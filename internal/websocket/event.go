package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event (created, updated, deleted)
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeJob       EntityType = "job"
	EntityTypeMember    EntityType = "member"
	EntityTypeCredits   EntityType = "credits"
	EntityTypeWorkspace EntityType = "workspace"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "job.created"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "job"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Is reports whether the event is eventType on entityType
func (e Event) Is(entityType EntityType, eventType EventType) bool {
	return e.Type == fmt.Sprintf("%s.%s", entityType, eventType)
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// JobCreated creates a job.created event
func JobCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeJob, payload)
}

// JobUpdated creates a job.updated event
func JobUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeJob, payload)
}

// JobDeleted creates a job.deleted event
func JobDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeJob, payload)
}

// MemberCreated creates a member.created event
func MemberCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeMember, payload)
}

// MemberUpdated creates a member.updated event
func MemberUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeMember, payload)
}

// MemberDeleted creates a member.deleted event
func MemberDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeMember, payload)
}

// CreditsUpdated creates a credits.updated event
func CreditsUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeCredits, payload)
}

// WorkspaceDeleted creates a workspace.deleted event
func WorkspaceDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeWorkspace, payload)
}
