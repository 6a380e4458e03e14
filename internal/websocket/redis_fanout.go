package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultFanoutChannel is the Redis pub/sub channel shared by all API instances
const DefaultFanoutChannel = "mediaforge:ws-events"

const publishTimeout = 2 * time.Second

// fanoutEnvelope wraps an event crossing instances
type fanoutEnvelope struct {
	Origin      string `json:"origin"`
	WorkspaceID int32  `json:"workspaceId"`
	Event       Event  `json:"event"`
}

// RedisFanout delivers events to the local hub and relays them through Redis
// so clients connected to other instances receive them too
type RedisFanout struct {
	client  *redis.Client
	hub     *Hub
	channel string
	origin  string
	logger  zerolog.Logger
}

// Ensure RedisFanout implements EventPublisher
var _ EventPublisher = (*RedisFanout)(nil)

// NewRedisFanout creates a fan-out publisher bound to hub
func NewRedisFanout(client *redis.Client, hub *Hub, channel string, logger zerolog.Logger) *RedisFanout {
	if channel == "" {
		channel = DefaultFanoutChannel
	}
	return &RedisFanout{
		client:  client,
		hub:     hub,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger.With().Str("component", "ws_fanout").Logger(),
	}
}

// Publish broadcasts locally, then relays to the other instances.
// A Redis failure only affects remote clients.
func (f *RedisFanout) Publish(workspaceID int32, event Event) {
	f.hub.Publish(workspaceID, event)

	data, err := json.Marshal(fanoutEnvelope{Origin: f.origin, WorkspaceID: workspaceID, Event: event})
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to encode fan-out event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		f.logger.Warn().
			Err(err).
			Int32("workspace_id", workspaceID).
			Str("event_type", event.Type).
			Msg("Failed to relay event to Redis")
	}
}

// Run subscribes to the channel and forwards remote events to the local hub
// until ctx is cancelled
func (f *RedisFanout) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	f.logger.Info().Str("channel", f.channel).Msg("Subscribed to event fan-out")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			f.handleMessage([]byte(msg.Payload))
		}
	}
}

// handleMessage forwards a relayed event unless this instance sent it
func (f *RedisFanout) handleMessage(payload []byte) bool {
	var env fanoutEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		f.logger.Warn().Err(err).Msg("Dropping malformed fan-out message")
		return false
	}
	if env.Origin == f.origin {
		return false
	}
	f.hub.Publish(env.WorkspaceID, env.Event)
	return true
}
