package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"legal-doc-intelligence/internal/auth"
	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	maxMessage = 8192

	closeAuthFailed    = 4001
	closeAccessDenied  = 4003
	closeInvalidMatter = 4004
	closeServerError   = 4500
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades GET /matter/:matter_id?token=... to a WebSocket.
// The handshake itself can't carry an Authorization header from a
// browser WebSocket client, so the token travels as a query parameter
// and is validated after upgrade, closing with a WebSocket close code
// rather than an HTTP error status.
func ServeWS(manager *Manager, authorizer auth.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		matterID := c.Param("matter_id")
		token := c.Query("token")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}

		if matterID == "" {
			closeWith(conn, closeInvalidMatter, "invalid matter")
			return
		}
		if token == "" {
			closeWith(conn, closeAuthFailed, "token query parameter is required")
			return
		}

		claims, err := authorizer.Authenticate(c.Request.Context(), token)
		if err != nil {
			closeWith(conn, closeAuthFailed, "invalid or expired token")
			return
		}
		ok, err := authorizer.Authorize(c.Request.Context(), claims.UserID, matterID,
			models.RoleOwner, models.RoleEditor, models.RoleViewer)
		if err != nil {
			closeWith(conn, closeServerError, "authorization check failed")
			return
		}
		if !ok {
			closeWith(conn, closeAccessDenied, "not a matter member")
			return
		}

		connection := manager.Register(uuid.NewString(), claims.UserID, matterID, conn)
		sendConnected(connection)
		go writePump(connection)
		readPump(connection, manager)
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	conn.Close()
}

func sendConnected(c *Connection) {
	payload, err := json.Marshal(Event{
		Type:      EventConnected,
		MatterID:  c.MatterID,
		UserID:    c.UserID,
		Timestamp: c.ConnectedAt,
	})
	if err != nil {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

// readPump discards application data frames besides the client's own
// {"type":"ping"} keepalive, which it answers in kind — this endpoint
// is broadcast-only, so nothing else a client sends is meaningful.
func readPump(c *Connection, manager *Manager) {
	defer func() {
		manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessage)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "user_id", c.UserID, "matter_id", c.MatterID, "error", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			select {
			case c.Send <- pong:
			default:
			}
		}
	}
}

// writePump relays queued messages and pings the client on a fixed
// cadence until Send is closed by Unregister.
func writePump(c *Connection) {
	ticker := time.NewTicker(pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
