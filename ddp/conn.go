package ddp

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message oriented, full duplex connection. WriteMessage is only
// ever called from one goroutine at a time.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// pinger is implemented by connections that need keepalives
type pinger interface {
	Ping() error
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration
}

func newWSConn(ws *websocket.Conn, opts Options) *wsConn {
	c := &wsConn{
		ws:           ws,
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
	}

	if opts.ReadLimitBytes > 0 {
		ws.SetReadLimit(opts.ReadLimitBytes)
	}
	if c.pingInterval > 0 {
		// A peer that misses two pings in a row is gone
		ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
		})
	}
	return c
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if c.pingInterval > 0 {
				c.ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
			}
			return message, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	// note that for websocket a deadline timeout cannot be recovered
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
