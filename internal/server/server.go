// Package server wires the relay core together and owns its lifecycle,
// including the idempotent shutdown sequence.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server is one relay instance: registry, admission pool, queue, dispatcher
// and the acceptor loop feeding them.
type Server struct {
	cfg        Config
	log        *slog.Logger
	metrics    *Metrics
	prometheus *prometheus.Registry

	registry   *Registry
	admission  *Admission
	queue      *Queue
	dispatcher *Dispatcher

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	mu              sync.Mutex
	listener        net.Listener
	dispatcherStart sync.Once
	dispatcherDone  chan struct{}
	sessions        sync.WaitGroup
	shutdown        sync.Once
	shutdownErr     error
}

// New validates cfg and builds a server that is ready to Serve.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	registry := NewRegistry()
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:            cfg,
		log:            log,
		metrics:        metrics,
		prometheus:     reg,
		registry:       registry,
		admission:      NewAdmission(cfg.MaxConnections),
		queue:          queue,
		dispatcher:     NewDispatcher(registry, queue, cfg.DispatchPollInterval, cfg.WriteTimeout, metrics, log),
		ctx:            ctx,
		cancel:         cancel,
		dispatcherDone: make(chan struct{}),
	}
	s.running.Store(true)
	return s, nil
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config { return s.cfg }

// Registry exposes the live-client registry.
func (s *Server) Registry() *Registry { return s.registry }

// ActiveSessions returns the number of held admission slots.
func (s *Server) ActiveSessions() int { return s.admission.InUse() }

// Gatherer returns the Prometheus registry holding the relay metrics.
func (s *Server) Gatherer() prometheus.Gatherer { return s.prometheus }

// Running reports whether the server still accepts sessions.
func (s *Server) Running() bool { return s.running.Load() }

func (s *Server) sessionDeps() sessionDeps {
	return sessionDeps{
		registry:      s.registry,
		queue:         s.queue,
		admission:     s.admission,
		metrics:       s.metrics,
		log:           s.log,
		maxLineLength: s.cfg.MaxLineLength,
		idleTimeout:   s.cfg.IdleTimeout,
		rateLimit:     s.cfg.RateLimit(),
	}
}

func (s *Server) trackListener(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return ErrServerClosed
	}
	if s.listener != nil && s.listener != ln {
		_ = s.listener.Close()
	}
	s.listener = ln
	return nil
}

// startDispatcher launches the dispatcher goroutine once per server.
func (s *Server) startDispatcher() {
	s.dispatcherStart.Do(func() {
		go func() {
			defer close(s.dispatcherDone)
			s.dispatcher.Run(s.ctx)
		}()
	})
}

// Shutdown stops accepting, closes every registered connection and waits up
// to timeout for the dispatcher and the sessions to finish. Every step is
// best-effort; calling Shutdown again is a no-op returning the first result.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Do(func() {
		s.shutdownErr = s.shutdownOnce(timeout)
	})
	return s.shutdownErr
}

func (s *Server) shutdownOnce(timeout time.Duration) error {
	s.log.Info("Shutting down server...")
	s.mu.Lock()
	s.running.Store(false)
	ln := s.listener
	s.mu.Unlock()
	s.cancel()

	if ln != nil {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("Error closing listener", "error", err)
		}
	}

	entries := s.registry.Drain()
	for _, entry := range entries {
		if err := entry.Conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("Error closing client connection", "client", entry.ID, "error", err)
		}
	}
	s.log.Info("Closed client connections", "count", len(entries))

	// A dispatcher that never started has nothing to wait for.
	s.dispatcherStart.Do(func() { close(s.dispatcherDone) })

	done := make(chan struct{})
	go func() {
		<-s.dispatcherDone
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Server shutdown completed")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Server shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
