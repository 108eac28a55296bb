// Package hub implements the per-user notification fan-out channel. Each
// authenticated connection joins a room named after its user id; emitting to a
// user reaches every live connection of that user. Delivery is best-effort:
// rooms are a transient in-memory routing table rebuilt on restart, and slow
// clients drop events rather than block publishers.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "markit_ws_connections",
		Help: "Currently open websocket connections.",
	})
	eventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markit_ws_events_emitted_total",
		Help: "Events pushed to websocket clients.",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markit_ws_events_dropped_total",
		Help: "Events dropped because a client send buffer was full.",
	})
)

// Hub maintains the room routing table and routes events to clients.
// A single Hub goroutine serializes membership changes via channels.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
}

// New creates a hub with an empty routing table.
func New() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes register and unregister events until the context is
// cancelled. Run should be called in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.joinRoom(c.userID, c)
			connectionsGauge.Inc()
		case c := <-h.unregister:
			h.removeClient(c)
			connectionsGauge.Dec()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) joinRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.closeOnce.Do(func() { close(c.send) })
}

// Emit pushes an event to every connection in the user's room. It never
// blocks; clients whose buffers are full miss the event.
func (h *Hub) Emit(userID, event string, payload any) {
	h.emitRoom(userID, nil, Event{Event: event, Data: payload, Timestamp: time.Now().UTC()})
}

// emitRoom delivers to all members of a room, skipping except when non-nil.
func (h *Hub) emitRoom(room string, except *Client, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		select {
		case c.send <- evt:
			eventsEmitted.Inc()
		default:
			eventsDropped.Inc()
		}
	}
}

// EmitAll broadcasts to every connected client.
func (h *Hub) EmitAll(event string, payload any) {
	evt := Event{Event: event, Data: payload, Timestamp: time.Now().UTC()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			select {
			case c.send <- evt:
				eventsEmitted.Inc()
			default:
				eventsDropped.Inc()
			}
		}
	}
}

// ConnectionCount returns the number of clients in the user's room.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}
