package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_String(t *testing.T) {
	tests := []struct {
		name     string
		et       EventType
		expected string
	}{
		{"created", EventTypeCreated, "created"},
		{"updated", EventTypeUpdated, "updated"},
		{"deleted", EventTypeDeleted, "deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.et))
		})
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"id":     "8c7e1d2a-0000-4000-8000-000000000001",
		"kind":   "text_to_image",
		"status": "pending",
	}

	before := time.Now()
	evt := NewEvent(EventTypeCreated, EntityTypeJob, payload)
	after := time.Now()

	assert.Equal(t, "job.created", evt.Type)
	assert.Equal(t, EntityTypeJob, evt.Entity)
	assert.Equal(t, payload, evt.Payload)
	assert.True(t, !evt.Timestamp.Before(before) && !evt.Timestamp.After(after))
}

func TestEvent_JSON_Serialization(t *testing.T) {
	fixedTime := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"id":              "job-1",
		"status":          "completed",
		"creditsReserved": float64(3),
	}

	evt := Event{
		Type:      "job.updated",
		Entity:    EntityTypeJob,
		Payload:   payload,
		Timestamp: fixedTime,
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded Event
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, evt.Type, decoded.Type)
	assert.Equal(t, evt.Entity, decoded.Entity)
	assert.Equal(t, fixedTime.UTC(), decoded.Timestamp.UTC())

	decodedPayload, ok := decoded.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "job-1", decodedPayload["id"])
	assert.Equal(t, "completed", decodedPayload["status"])
	assert.Equal(t, float64(3), decodedPayload["creditsReserved"])
}

func TestEvent_ToJSON(t *testing.T) {
	evt := NewEvent(EventTypeUpdated, EntityTypeCredits, map[string]interface{}{"balance": float64(42)})

	data, err := evt.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, "credits.updated", decoded["type"])
	assert.Equal(t, "credits", decoded["entity"])
	assert.NotNil(t, decoded["payload"])
	assert.NotNil(t, decoded["timestamp"])
}

func TestJobEvent_Helpers(t *testing.T) {
	payload := map[string]interface{}{"id": "job-1", "status": "processing"}

	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{"JobCreated", JobCreated(payload), "job.created"},
		{"JobUpdated", JobUpdated(payload), "job.updated"},
		{"JobDeleted", JobDeleted(payload), "job.deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.evt.Type)
			assert.Equal(t, EntityTypeJob, tt.evt.Entity)
			assert.Equal(t, payload, tt.evt.Payload)
		})
	}
}

func TestMemberEvent_Helpers(t *testing.T) {
	payload := map[string]interface{}{"userId": "u-1", "role": "member"}

	assert.Equal(t, "member.created", MemberCreated(payload).Type)
	assert.Equal(t, "member.updated", MemberUpdated(payload).Type)
	assert.Equal(t, "member.deleted", MemberDeleted(payload).Type)
	assert.Equal(t, EntityTypeMember, MemberDeleted(payload).Entity)
}
