package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/signlink/signlink/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn is an indirection over *websocket.Conn to ease testing.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one connected participant: the socket plus a buffered ordered
// send queue. One queue per connection is what guarantees per-direction FIFO
// delivery of transport hints.
type client struct {
	id   domain.ParticipantID
	conn wsConn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(id domain.ParticipantID, conn wsConn, buffer int) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

func (c *client) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}
