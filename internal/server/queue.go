// Package server implements the unbounded FIFO queue between the session
// producers and the single broadcast consumer.
package server

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded multi-producer, single-consumer FIFO of outbound
// messages. Seq numbers are assigned under the same lock that appends, so the
// queue order and the Seq order are identical.
type Queue struct {
	mu    sync.Mutex
	items []OutboundMessage
	seq   uint64
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends a message and wakes the consumer. It never blocks.
func (q *Queue) Push(senderID, text string) OutboundMessage {
	q.mu.Lock()
	q.seq++
	msg := OutboundMessage{SenderID: senderID, Text: text, Seq: q.seq}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return msg
}

// Pop takes the oldest message, waiting at most wait for one to arrive.
// It returns false on timeout or when ctx is done.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (OutboundMessage, bool) {
	if msg, ok := q.tryPop(); ok {
		return msg, true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return OutboundMessage{}, false
		case <-timer.C:
			return q.tryPop()
		case <-q.ready:
			if msg, ok := q.tryPop(); ok {
				return msg, true
			}
		}
	}
}

// Len returns the number of messages waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) tryPop() (OutboundMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return OutboundMessage{}, false
	}
	msg := q.items[0]
	q.items[0] = OutboundMessage{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg, true
}
