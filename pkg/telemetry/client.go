package telemetry

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// clientBuffer is how many samples a subscriber may lag behind
	clientBuffer = 512
)

// client is one websocket subscriber of the bus.
type client struct {
	bus  *Bus
	conn *websocket.Conn
	send chan []byte
}

// serve registers the client and blocks until the connection closes.
func (c *client) serve() {
	select {
	case c.bus.register <- c:
	case <-c.bus.done:
		c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// readPump only detects disconnection and handles pongs; subscribers never
// send anything meaningful.
func (c *client) readPump() {
	defer func() {
		select {
		case c.bus.unregister <- c:
		case <-c.bus.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Bus dropped us
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
