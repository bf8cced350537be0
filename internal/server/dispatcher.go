// Package server coordinates message broadcast: the single dispatcher drains
// the queue and fans every message out to a registry snapshot.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// Dispatcher is the single consumer of the Queue. It writes each message to
// every registered client except its sender and prunes recipients whose write
// fails.
type Dispatcher struct {
	registry     *Registry
	queue        *Queue
	poll         time.Duration
	writeTimeout time.Duration
	metrics      *Metrics
	log          *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry and queue.
func NewDispatcher(registry *Registry, queue *Queue, poll, writeTimeout time.Duration, metrics *Metrics, log *slog.Logger) *Dispatcher {
	if poll <= 0 {
		poll = time.Second
	}
	return &Dispatcher{
		registry:     registry,
		queue:        queue,
		poll:         poll,
		writeTimeout: writeTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run consumes the queue until ctx is done. An empty queue only costs one
// bounded wait per iteration.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Debug("Dispatcher started", "poll", d.poll)
	defer d.log.Debug("Dispatcher stopped")

	for ctx.Err() == nil {
		msg, ok := d.queue.Pop(ctx, d.poll)
		if !ok {
			continue
		}
		d.Dispatch(msg)
	}
}

// Dispatch fans one message out and returns the number of recipients that
// received it. A panic while dispatching is logged and swallowed so later
// messages are still broadcast.
func (d *Dispatcher) Dispatch(msg OutboundMessage) (delivered int) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.dispatchPanicked()
			d.log.Error("Recovered from panic in dispatcher", "seq", msg.Seq, "panic", r)
		}
	}()

	recipients := lo.Filter(d.registry.Snapshot(), func(e RegistryEntry, _ int) bool {
		return e.ID != msg.SenderID
	})
	payload := []byte(msg.Line())

	for _, recipient := range recipients {
		if err := d.write(recipient.Conn, payload); err != nil {
			d.prune(recipient, err)
			continue
		}
		delivered++
		d.metrics.messageDelivered()
	}

	d.log.Debug("Broadcast message", "seq", msg.Seq, "sender", msg.SenderID,
		"recipients", len(recipients), "delivered", delivered)
	return delivered
}

func (d *Dispatcher) write(conn Conn, payload []byte) error {
	if d.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	return nil
}

// prune removes a recipient whose write failed from the live registry and
// closes its connection, which also ends that session's read loop.
func (d *Dispatcher) prune(recipient RegistryEntry, cause error) {
	removed := d.registry.remove(recipient.ID, recipient.Conn)
	if err := recipient.Conn.Close(); err != nil && !isExpectedCloseError(err) {
		d.log.Debug("Error closing pruned connection", "client", recipient.ID, "error", err)
	}
	if !removed {
		return
	}
	d.metrics.recipientPruned()
	d.log.Warn("Removed client after failed write", "client", recipient.ID, "error", cause)
}
