package hub

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"markit/internal/auth"
)

// UserDirectory resolves a user id from a verified token to a live account.
// Inactive or missing users are rejected at handshake time.
type UserDirectory interface {
	ActiveUser(ctx context.Context, id string) (name string, ok bool, err error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST layer owns CORS policy; the browser's Origin check adds
	// nothing for a token-authenticated socket.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades an authenticated HTTP request to a websocket connection,
// joins it to the user's room and sends the welcome event. The bearer
// credential comes from the "token" query parameter or Authorization header.
func Handler(h *Hub, users UserDirectory, signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = auth.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication error: No token provided"})
			return
		}
		claims, err := auth.Parse(token, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication error: Invalid token"})
			return
		}
		name, ok, err := users.ActiveUser(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication error: User not found or inactive"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("ws upgrade failed for user %s: %v", claims.UserID, err)
			return
		}

		client := newClient(h, conn, claims.UserID, name)
		h.register <- client

		go client.writePump()
		go client.readPump()

		client.send <- Event{
			Event: "connected",
			Data: map[string]any{
				"message": "Connected to MarkIt real-time server",
				"userId":  claims.UserID,
			},
			Timestamp: time.Now().UTC(),
		}
	}
}
