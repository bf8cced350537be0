// Package server implements the GoChat text relay.
//
// Clients connect over TCP (or WebSocket through the HTTP gateway) and send
// newline-terminated lines. Each accepted connection passes a bounded
// admission pool, registers in the shared Registry and runs its own Session
// goroutine. Sessions push lines onto an unbounded Queue; a single Dispatcher
// drains it and writes every message to all registered clients except the
// sender, pruning clients whose write fails.
//
// The implementation is organized into specialized files for configuration,
// registry, admission, sessions, dispatch, routing and HTTP handlers.
package server
