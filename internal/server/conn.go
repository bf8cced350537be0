// Package server wraps peer connections so that every transport (raw TCP or
// WebSocket) looks the same to sessions, the registry and the dispatcher.
package server

//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=mocks/mock_conn.go -package=mocks

import (
	"io"
	"net"
	"sync"
	"time"
)

// Conn is the connection handle owned by one session. net.Conn satisfies it.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// sessionConn makes Close idempotent: whichever path observes termination
// first closes the handle, later calls return the first result.
type sessionConn struct {
	Conn
	once sync.Once
	err  error
}

func newSessionConn(c Conn) *sessionConn {
	if sc, ok := c.(*sessionConn); ok {
		return sc
	}
	return &sessionConn{Conn: c}
}

func (c *sessionConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}
