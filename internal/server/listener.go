// Package server runs the acceptor loop: every accepted connection is gated by
// the admission pool and handed to its own session goroutine.
package server

import (
	"context"
	"fmt"
	"net"
	"time"
)

const (
	transportTCP       = "tcp"
	transportWebSocket = "websocket"

	maxAcceptBackoff   = time.Second
	// rejectWriteTimeout caps the capacity notice write to a rejected peer.
	rejectWriteTimeout = time.Second
)

// Listen binds the configured TCP address with address reuse enabled.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return ln, nil
}

// ListenAndServe binds the configured address and serves it. A bind failure
// runs the shutdown sequence before it is returned.
func (s *Server) ListenAndServe() error {
	ln, err := s.Listen(s.ctx)
	if err != nil {
		s.log.Error("Error starting server", "addr", s.cfg.Addr(), "error", err)
		_ = s.Shutdown(s.cfg.ShutdownTimeout)
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server stops. It always returns a
// non-nil error; ErrServerClosed after a regular shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.trackListener(ln); err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		_ = s.Shutdown(s.cfg.ShutdownTimeout)
	}()

	s.startDispatcher()
	s.log.Info("Started", "addr", ln.Addr().String(), "capacity", s.admission.Capacity())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return ErrServerClosed
			}
			backoff = nextBackoff(backoff)
			s.log.Warn("Error accepting connection", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		backoff = 0

		s.log.Info("New connection", "addr", conn.RemoteAddr().String())
		s.Admit(conn, transportTCP)
	}
}

// Admit gates an accepted connection through the admission pool. Admitted
// connections get a session goroutine; the caller never waits for it.
func (s *Server) Admit(conn Conn, transport string) {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	if !s.admission.TryAcquire() {
		s.sessions.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.sessions.Done()
			s.reject(conn)
		}()
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	s.metrics.sessionAdmitted(transport)

	session := newSession(conn, s.sessionDeps())
	go func() {
		defer s.sessions.Done()
		session.Run()
	}()
}

// reject applies the immediate-rejection policy: a capacity notice, then close.
// It runs on its own goroutine, off the accept loop.
func (s *Server) reject(conn Conn) {
	s.metrics.sessionRejected()
	s.log.Info("Rejected connection, server is full",
		"addr", conn.RemoteAddr().String(), "capacity", s.admission.Capacity())

	if err := conn.SetWriteDeadline(time.Now().Add(min(s.cfg.WriteTimeout, rejectWriteTimeout))); err == nil {
		if _, err := conn.Write([]byte(capacityNotice(s.admission.Capacity()))); err != nil && !isExpectedCloseError(err) {
			s.log.Debug("Error writing capacity notice", "error", err)
		}
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug("Error closing rejected connection", "error", err)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	return min(current*2, maxAcceptBackoff)
}
