// Package server bounds the number of concurrently handled sessions with a
// fixed pool of admission slots.
package server

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConnections is the admission capacity used when none is configured.
const DefaultMaxConnections = 5

// Admission is a fixed-capacity slot pool. TryAcquire never blocks; every
// successful TryAcquire must be paired with exactly one Release.
type Admission struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

// NewAdmission creates a pool with the given capacity. Non-positive values
// fall back to DefaultMaxConnections.
func NewAdmission(capacity int) *Admission {
	if capacity <= 0 {
		capacity = DefaultMaxConnections
	}
	return &Admission{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// TryAcquire takes a slot if one is free and reports whether it did.
func (a *Admission) TryAcquire() bool {
	if !a.sem.TryAcquire(1) {
		return false
	}
	a.inUse.Add(1)
	return true
}

// Release returns a slot to the pool. A Release without a held slot is ignored
// instead of corrupting the pool.
func (a *Admission) Release() {
	for {
		n := a.inUse.Load()
		if n <= 0 {
			return
		}
		if a.inUse.CompareAndSwap(n, n-1) {
			break
		}
	}
	a.sem.Release(1)
}

// InUse returns the number of slots currently held.
func (a *Admission) InUse() int {
	return int(a.inUse.Load())
}

// Capacity returns the fixed pool size.
func (a *Admission) Capacity() int {
	return a.capacity
}
