package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"mocksync/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 4 << 20 // a tab's full markup travels in one frame
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Editors are served from other origins in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request, greets the connection with its id and starts
// its pumps.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		ID:     uuid.NewString(),
		UserID: userID,
		Send:   make(chan []byte, 256),
	}

	welcome, err := NewEnvelope(WelcomeType, "", client.ID, Welcome{ConnectionID: client.ID})
	if err != nil {
		conn.Close()
		return
	}
	// The pumps are not running yet, so this is the only writer.
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(welcome); err != nil {
		logger.Sugar.Warnf("Failed to greet connection %s: %v", client.ID, err)
		conn.Close()
		return
	}

	select {
	case hub.Register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(rawMessage, &env); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		switch env.Type {
		case JoinProjectType:
			var join JoinProject
			if err := env.Decode(&join); err != nil || join.ProjectID == "" {
				logger.Sugar.Warnf("Connection %s sent an invalid join: %v", c.ID, err)
				continue
			}
			select {
			case c.Hub.Join <- joinRequest{client: c, projectID: join.ProjectID}:
			case <-c.Hub.done:
				return
			}
		case TabsSnapshotType, EditorUpdateType, CursorMoveType, CursorLeaveType:
			select {
			case c.Hub.Broadcast <- Message{From: c, Envelope: env}:
			case <-c.Hub.done:
				return
			}
		default:
			logger.Sugar.Debugf("Connection %s sent unknown event %q", c.ID, env.Type)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
