package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/grainway/batchgate/reconcile"
)

const (
	// writeWait is the deadline for a single write to a client.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the read
	// side gives up on it.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so pings keep the
	// connection alive.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; clients only ever send
	// control traffic.
	maxMessageSize = 512

	// sendBuffer is the per-client summary queue. A client that falls
	// this far behind is dropped by the hub.
	sendBuffer = 8
)

// Client is one WebSocket subscriber to the run summary feed.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan *reconcile.RunSummary

	id        string
	closeOnce sync.Once
}

// close shuts the send channel exactly once; writePump then sends the
// close frame and tears the connection down.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// HandleRunsFeed upgrades GET /ws/runs to a WebSocket subscription.
func (s *Server) HandleRunsFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan *reconcile.RunSummary, sendBuffer),
		id:     uuid.NewString()[:8],
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so pings and close frames are
// processed. Clients have nothing to say on this feed.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debugw("Client read error",
					"client_id", c.id,
					"error", err)
			}
			return
		}
	}
}

// writePump pushes run summaries and keepalive pings to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case summary, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(summary); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
