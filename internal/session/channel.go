package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned when sending on a closed channel
var ErrChannelClosed = errors.New("channel closed")

const defaultWriteTimeout = 5 * time.Second

// Channel is the bidirectional link to one client. Send is safe for
// concurrent use.
type Channel interface {
	Send(msg any) error
	Close() error
}

// wsConn is the subset of *websocket.Conn the channel writes through
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// wsChannel serializes writes to a WebSocket connection
type wsChannel struct {
	conn         wsConn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSChannel(conn wsConn, writeTimeout time.Duration) *wsChannel {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &wsChannel{conn: conn, writeTimeout: writeTimeout}
}

// Send writes msg as one JSON text frame
func (c *wsChannel) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Ping sends a ping control frame
func (c *wsChannel) Ping() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	return c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
}

// Close sends a close frame and closes the connection. Safe to call more than once.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	return c.conn.Close()
}
