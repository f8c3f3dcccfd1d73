package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dooshek/micscope/internal/logger"
	"github.com/gorilla/websocket"
)

// client owns one connection. Only writeLoop writes to conn.
type client struct {
	conn   *websocket.Conn
	remote string
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		queue:  make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// offer queues data without blocking; false means it was dropped.
func (c *client) offer(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *client) send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal stream message", err)
		return
	}
	c.offer(data)
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.conn.Close()
			return
		case data := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("Write to %s failed: %v", c.remote, err)
				c.conn.Close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}
