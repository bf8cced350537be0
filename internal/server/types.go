// Package server defines the message types shared by sessions, the queue and
// the dispatcher, together with the notice texts the relay authors itself.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

const (
	// ServerSenderID is the reserved sender identity of server-authored notices.
	// Client identities always start with clientIDPrefix, so the two never collide.
	ServerSenderID = "[SERVER]"

	// ExitCommand ends the sending client's session. Matching is case-insensitive.
	ExitCommand = "/exit"

	clientIDPrefix = "Client-"
)

// OutboundMessage is one unit of work for the dispatcher. It is immutable once
// pushed onto the Queue; Seq is the global enqueue order.
type OutboundMessage struct {
	SenderID string
	Text     string
	Seq      uint64
}

// IsNotice reports whether the message was authored by the server itself.
func (m OutboundMessage) IsNotice() bool {
	return m.SenderID == ServerSenderID
}

// Line renders the message the way recipients see it, newline terminated.
// Notices are delivered as their bare text.
func (m OutboundMessage) Line() string {
	if m.IsNotice() {
		return m.Text + "\n"
	}
	return m.SenderID + ": " + m.Text + "\n"
}

// SessionID derives the stable client identifier from the peer address.
func SessionID(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return clientIDPrefix + addr.String()
}

func joinNotice(id string) string {
	return fmt.Sprintf("%s %s has joined the chat", ServerSenderID, id)
}

func leaveNotice(id string) string {
	return fmt.Sprintf("%s %s has left the chat", ServerSenderID, id)
}

func capacityNotice(capacity int) string {
	return fmt.Sprintf("%s Server is full (max %d clients). Try again later.\n", ServerSenderID, capacity)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
