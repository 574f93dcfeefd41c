// Package server manages individual WebSocket connections, handling the
// read/write pumps and lifecycle control for each one.
package server

import (
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for the next pong before assuming the
	// peer is gone.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendQueueSize is the outbound buffer per connection. A consumer that
	// falls this far behind is dropped rather than backpressured.
	sendQueueSize = 256
)

// Client is the transport endpoint for one WebSocket connection. It holds the
// session id as a lookup key into the hub's session table; the Session record
// itself is owned by the hub.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	addr      string
	sessionID string
	closed    bool
}

// NewClient wraps an accepted WebSocket connection and assigns it a fresh
// session id. The id is stable for the connection's lifetime.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(currentConfig().MaxMessageSize)
	}

	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		hub:       hub,
		addr:      addr,
		sessionID: uuid.NewString(),
	}
}

// SessionID returns the transport-assigned session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// readPump forwards inbound frames to the hub until the connection dies,
// then funnels the session through the unregister path.
func (c *Client) readPump() {
	defer func() {
		// During shutdown the event loop is gone; don't wait on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		select {
		case c.hub.inbound <- frame{sessionID: c.sessionID, data: data}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// logReadError classifies the error that ended the read loop so routine
// disconnects stay quiet in the logs.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded the configured size limit", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Session %s at %s disconnected: %v", c.sessionID, c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Connection from %s closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// writePump drains the send queue to the peer and keeps the connection alive
// with periodic pings. It exits when the hub closes the send channel or a
// write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}
			if !ok {
				c.writeClose()
				return
			}
			if !c.writeFrame(data) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame writes one frame and batches any frames already queued behind
// it, newline separated, into the same WebSocket message.
func (c *Client) writeFrame(data []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing frame to %s: %v", c.addr, err)
		return false
	}

	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			log.Printf("Error writing frame separator to %s: %v", c.addr, err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			log.Printf("Error writing queued frame to %s: %v", c.addr, err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		log.Printf("Error closing writer for %s: %v", c.addr, err)
		return false
	}
	return true
}

func (c *Client) writeClose() {
	err := c.conn.WriteMessage(websocket.CloseMessage, []byte{})
	if err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing close message to %s: %v", c.addr, err)
	}
}

// isExpectedCloseError checks if an error is expected during connection
// teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
