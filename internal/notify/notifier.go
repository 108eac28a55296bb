package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"markit/internal/hub"
)

// Notifier pushes an event to all of a user's live connections. Emission is
// fire-and-forget: failures are logged and never surface to the caller.
type Notifier interface {
	Emit(userID, event string, payload any)
}

// Memory delivers events straight to the local hub. Default backend for a
// single-process deployment.
type Memory struct {
	hub *hub.Hub
}

// NewMemory creates the in-process notifier.
func NewMemory(h *hub.Hub) *Memory {
	return &Memory{hub: h}
}

// Emit broadcasts to the user's room on the local hub.
func (m *Memory) Emit(userID, event string, payload any) {
	m.hub.Emit(userID, event, payload)
}

// envelope is the wire format on the redis channel.
type envelope struct {
	UserID  string          `json:"userId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisNotifier publishes events on a redis channel so that every API
// instance can fan out to its own connections.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedis builds a redis-backed notifier publishing on channel.
func NewRedis(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "markit:events"
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Emit publishes the event; publish failures are logged and swallowed.
func (n *RedisNotifier) Emit(userID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal payload for %s failed: %v", event, err)
		return
	}
	body, err := json.Marshal(envelope{UserID: userID, Event: event, Payload: raw})
	if err != nil {
		log.Printf("notify: marshal envelope failed: %v", err)
		return
	}
	if err := n.client.Publish(context.Background(), n.channel, body).Err(); err != nil {
		log.Printf("notify: publish failed: %v", err)
	}
}

// RunBridge subscribes to the redis channel and replays events into the local
// hub until the context is cancelled. Run it in its own goroutine alongside a
// RedisNotifier.
func RunBridge(ctx context.Context, client *redis.Client, channel string, h *hub.Hub) {
	if channel == "" {
		channel = "markit:events"
	}
	sub := client.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("notify: bad envelope: %v", err)
				continue
			}
			var payload any
			if len(env.Payload) > 0 {
				_ = json.Unmarshal(env.Payload, &payload)
			}
			h.Emit(env.UserID, env.Event, payload)
		case <-ctx.Done():
			return
		}
	}
}
