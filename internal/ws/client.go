package ws

import (
	"log/slog"
	"net/http"
	"time"

	"B24Relay/internal/lib/sl"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

// The stream is guarded by the admin key, not by origin.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one dashboard connection following the log stream.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// stream forwards hub events to the connection. It returns when the hub
// closes send, the peer stops answering pings or a write fails.
func (c *Client) stream() {
	gone := make(chan struct{})
	go c.drain(gone)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// drain discards client frames so that pong and close frames get processed.
func (c *Client) drain(gone chan<- struct{}) {
	defer close(gone)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

// Authenticator checks the admin key presented by a dashboard client.
type Authenticator interface {
	AuthenticateByToken(token string) error
}

// ServeWs upgrades a dashboard request and subscribes it to live log
// entries. Browsers cannot set headers on websocket requests, so the key
// comes from the token query parameter.
func ServeWs(hub *Hub, auth Authenticator, log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	if err := auth.AuthenticateByToken(r.URL.Query().Get("token")); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.stream()
}
