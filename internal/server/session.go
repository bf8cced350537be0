// Package server manages individual client sessions: line framing, the
// join/receive/leave state machine, and the mandatory teardown sequence.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// SessionState is the lifecycle position of one session.
type SessionState int32

const (
	StateConnected SessionState = iota
	StateJoined
	StateReceiving
	StateLeaving
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateReceiving:
		return "receiving"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReadStatus is the explicit outcome of one read from a peer. It drives the
// session state machine instead of error categories.
type ReadStatus int

const (
	LineReceived ReadStatus = iota
	PeerClosed
	ProtocolExit
	IoFailure
)

func (s ReadStatus) String() string {
	switch s {
	case LineReceived:
		return "line"
	case PeerClosed:
		return "peer_closed"
	case ProtocolExit:
		return "exit"
	case IoFailure:
		return "io_failure"
	default:
		return "unknown"
	}
}

// lineReader frames the byte stream into newline-delimited lines. A final line
// without a terminator is still delivered before PeerClosed.
type lineReader struct {
	conn    Conn
	scanner *bufio.Scanner
	idle    time.Duration
}

func newLineReader(conn Conn, maxLineLength int, idle time.Duration) *lineReader {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(maxLineLength, 4096)), maxLineLength)
	return &lineReader{conn: conn, scanner: scanner, idle: idle}
}

// Next blocks until the peer produces a meaningful event. Blank lines are
// skipped; the returned line has trailing whitespace removed.
func (r *lineReader) Next() (string, ReadStatus, error) {
	for {
		if r.idle > 0 {
			if err := r.conn.SetReadDeadline(time.Now().Add(r.idle)); err != nil {
				return "", IoFailure, fmt.Errorf("set read deadline: %w", err)
			}
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return "", IoFailure, err
			}
			return "", PeerClosed, nil
		}

		line := strings.TrimRightFunc(r.scanner.Text(), unicode.IsSpace)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.EqualFold(line, ExitCommand) {
			return "", ProtocolExit, nil
		}
		return line, LineReceived, nil
	}
}

// sessionDeps are the shared components a session works against.
type sessionDeps struct {
	registry      *Registry
	queue         *Queue
	admission     *Admission
	metrics       *Metrics
	log           *slog.Logger
	maxLineLength int
	idleTimeout   time.Duration
	rateLimit     RateLimitConfig
}

// Session is the server side of one admitted connection. It owns the
// connection and the admission slot acquired for it.
type Session struct {
	id      string
	key     uuid.UUID
	conn    *sessionConn
	deps    sessionDeps
	reader  *lineReader
	limiter *rateLimiter
	log     *slog.Logger

	state    atomic.Int32
	joined   bool
	ended    ReadStatus
	teardown sync.Once
	done     chan struct{}
}

func newSession(conn Conn, deps sessionDeps) *Session {
	sc := newSessionConn(conn)
	id := SessionID(conn.RemoteAddr())
	key := uuid.New()
	s := &Session{
		id:      id,
		key:     key,
		conn:    sc,
		deps:    deps,
		reader:  newLineReader(sc, deps.maxLineLength, deps.idleTimeout),
		limiter: newRateLimiter(deps.rateLimit),
		log:     deps.log.With("client", id, "session", key.String()),
		ended:   IoFailure,
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateConnected))
	return s
}

// ID returns the client identifier used as the message sender id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done is closed once the session reached StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Run drives the session from CONNECTED to CLOSED. The teardown runs on every
// exit path, including a panic inside the read loop.
func (s *Session) Run() {
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.ended = IoFailure
			s.log.Error("Recovered from panic in session", "panic", r)
		}
	}()

	if err := s.join(); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			s.log.Warn("Rejected duplicate session", "error", err)
		} else {
			s.log.Info("Session not joined", "error", err)
		}
		return
	}

	s.setState(StateReceiving)
	s.ended = s.receive()
}

func (s *Session) join() error {
	if err := s.deps.registry.Register(s.id, s.conn); err != nil {
		return err
	}
	s.joined = true
	s.setState(StateJoined)
	s.enqueue(ServerSenderID, joinNotice(s.id))
	s.log.Info("Client joined", "clients", s.deps.registry.Len())
	return nil
}

func (s *Session) receive() ReadStatus {
	for {
		line, status, err := s.reader.Next()
		switch status {
		case LineReceived:
			if !s.limiter.allow() {
				s.deps.metrics.lineRateLimited()
				s.log.Warn("Rate limit exceeded; discarding line",
					"burst", s.limiter.capacity, "refill", s.deps.rateLimit.RefillInterval)
				continue
			}
			msg := s.enqueue(s.id, line)
			s.log.Debug("Received line", "seq", msg.Seq, "bytes", len(line))
		case ProtocolExit:
			s.log.Info("Client sent exit command")
			return status
		case PeerClosed:
			s.log.Info("Client connection closed")
			return status
		default:
			s.logReadFailure(err)
			return IoFailure
		}
	}
}

func (s *Session) logReadFailure(err error) {
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		s.log.Warn("Line exceeded maximum length", "max", s.deps.maxLineLength)
	case isTimeout(err):
		s.log.Info("Client idle timeout", "idle", s.deps.idleTimeout)
	case isExpectedCloseError(err):
		s.log.Debug("Client connection ended", "error", err)
	default:
		s.log.Warn("Read error", "error", err)
	}
}

func (s *Session) enqueue(senderID, text string) OutboundMessage {
	msg := s.deps.queue.Push(senderID, text)
	s.deps.metrics.messageEnqueued(msg)
	return msg
}

// close is the LEAVING -> CLOSED sequence: unregister, leave notice, close the
// connection, release the slot. It runs at most once.
func (s *Session) close() {
	s.teardown.Do(func() {
		s.setState(StateLeaving)

		s.deps.registry.remove(s.id, s.conn)
		if s.joined {
			s.enqueue(ServerSenderID, leaveNotice(s.id))
		}
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("Error closing connection", "error", err)
		}
		s.deps.admission.Release()
		s.deps.metrics.sessionEnded(s.ended)

		s.setState(StateClosed)
		close(s.done)
		s.log.Info("Client left", "status", s.ended.String(), "clients", s.deps.registry.Len())
	})
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
