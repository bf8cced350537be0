// Package server adapts WebSocket peers to the stream connection used by
// sessions so browser clients share the TCP relay path.
package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// wsConn presents a WebSocket as a newline-framed byte stream. Every inbound
// text or binary message becomes one line; every Write becomes one text message.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	pending []byte
}

func newWSConn(ws *websocket.Conn, maxLineLength int) *wsConn {
	if maxLineLength > 0 {
		ws.SetReadLimit(int64(maxLineLength))
	}
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, translateWSError(err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		c.pending = append(bytes.TrimRight(data, "\r\n"), '\n')
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(p, []byte("\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal closure frame before dropping the socket.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }

func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// translateWSError maps WebSocket closures onto the stream semantics the line
// reader understands.
func translateWSError(err error) error {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return io.EOF
	case errors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: %w", bufio.ErrTooLong, err)
	default:
		return err
	}
}
