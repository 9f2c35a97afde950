// ABOUTME: Adapts a gorilla/websocket connection to the session Conn interface
// ABOUTME: Serializes writes, enforces read limits, and keeps the peer alive with pings

package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsOptions are the transport limits applied to each upgraded connection.
type wsOptions struct {
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
}

// wsConn implements session.Conn over a gorilla websocket.
type wsConn struct {
	ws   *websocket.Conn
	opts wsOptions

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	pingDone  chan struct{}
}

func newWSConn(ws *websocket.Conn, opts wsOptions) *wsConn {
	c := &wsConn{
		ws:       ws,
		opts:     opts,
		done:     make(chan struct{}),
		pingDone: make(chan struct{}),
	}

	ws.SetReadLimit(opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.pingLoop()
	return c
}

// ReadMessage returns the payload of the next data frame.
func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteMessage sends one text frame.
func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then drops the connection.
// Only the first call has an effect.
func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.pingDone

		deadline := time.Now().Add(c.opts.WriteTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) pingLoop() {
	defer close(c.pingDone)

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
