package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Client is one live websocket connection bound to a user.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	userName string

	send      chan Event
	rooms     map[string]struct{}
	closeOnce sync.Once
}

// inbound is a client-to-server message.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newClient(h *Hub, conn *websocket.Conn, userID, userName string) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		userID:   userID,
		userName: userName,
		send:     make(chan Event, sendBuffer),
		rooms:    make(map[string]struct{}),
	}
}

// readPump consumes inbound messages and dispatches the auxiliary UI events.
// It exits when the connection drops and unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.hub.EmitAll("user_disconnected", map[string]any{
			"userId":   c.userID,
			"userName": c.userName,
		})
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error for user %s: %v", c.userID, err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Event {
	case "join_room":
		room := rawString(msg.Data)
		if room == "" {
			return
		}
		c.hub.joinRoom(room, c)
		c.hub.emitRoom(room, c, Event{
			Event:     "user_joined",
			Data:      map[string]any{"userId": c.userID, "userName": c.userName},
			Timestamp: time.Now().UTC(),
		})
	case "leave_room":
		room := rawString(msg.Data)
		if room == "" || room == c.userID {
			return
		}
		c.hub.leaveRoom(room, c)
		c.hub.emitRoom(room, c, Event{
			Event:     "user_left",
			Data:      map[string]any{"userId": c.userID, "userName": c.userName},
			Timestamp: time.Now().UTC(),
		})
	case "typing_start", "typing_stop":
		var body struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil || body.RoomID == "" {
			return
		}
		name := "user_typing"
		if msg.Event == "typing_stop" {
			name = "user_stopped_typing"
		}
		c.hub.emitRoom(body.RoomID, c, Event{
			Event:     name,
			Data:      map[string]any{"userId": c.userID, "userName": c.userName},
			Timestamp: time.Now().UTC(),
		})
	case "attendance_update":
		var data map[string]any
		if err := json.Unmarshal(msg.Data, &data); err != nil || data == nil {
			return
		}
		data["userId"] = c.userID
		c.hub.emitRoom(c.userID, c, Event{
			Event:     "attendance_updated",
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
	case "lecture_created":
		var body struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(msg.Data, &body)
		c.hub.emitRoom(c.userID, c, Event{
			Event: "lecture_notification",
			Data: Notification{
				Type:    "lecture_created",
				Message: fmt.Sprintf("New lecture %q has been added", body.Title),
				Data:    json.RawMessage(msg.Data),
			},
			Timestamp: time.Now().UTC(),
		})
	case "subject_updated":
		var body struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(msg.Data, &body)
		c.hub.emitRoom(c.userID, c, Event{
			Event: "subject_notification",
			Data: Notification{
				Type:    "subject_updated",
				Message: fmt.Sprintf("Subject %q has been updated", body.Name),
				Data:    json.RawMessage(msg.Data),
			},
			Timestamp: time.Now().UTC(),
		})
	case "goal_achieved":
		// Achievement goes back to the reporting connection only.
		var body struct {
			Goal int `json:"goal"`
		}
		_ = json.Unmarshal(msg.Data, &body)
		evt := Event{
			Event: "achievement",
			Data: Notification{
				Type:    "goal_achieved",
				Message: fmt.Sprintf("Congratulations! You've achieved %d%% attendance", body.Goal),
				Data:    json.RawMessage(msg.Data),
			},
			Timestamp: time.Now().UTC(),
		}
		select {
		case c.send <- evt:
		default:
		}
	case "update_status":
		c.hub.EmitAll("user_status_updated", map[string]any{
			"userId":   c.userID,
			"userName": c.userName,
			"status":   rawString(msg.Data),
		})
	case "ping":
		select {
		case c.send <- Event{Event: "pong", Timestamp: time.Now().UTC()}:
		default:
		}
	}
}

// rawString decodes data that may be a bare JSON string.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// writePump flushes the send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case evt, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
