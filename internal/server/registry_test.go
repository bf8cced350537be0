package server

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a
}

func TestRegistry_RegisterAndSnapshotOrder(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given three sessions registered in order
	ids := []string{"Client-c", "Client-a", "Client-b"}
	for _, id := range ids {
		req.NoError(r.Register(id, pipeConn(t)))
	}

	// Then the snapshot follows registration order, not key order
	req.Equal(ids, r.IDs())
	req.Equal(3, r.Len())
}

func TestRegistry_DuplicateIsRejected(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	live := pipeConn(t)

	req.NoError(r.Register("Client-1", live))
	err := r.Register("Client-1", pipeConn(t))

	req.ErrorIs(err, ErrDuplicateSession)
	snapshot := r.Snapshot()
	req.Len(snapshot, 1)
	req.Same(live, snapshot[0].Conn)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	req.NoError(r.Register("Client-1", pipeConn(t)))

	req.True(r.Unregister("Client-1"))
	req.False(r.Unregister("Client-1"))
	req.False(r.Unregister("Client-unknown"))
	req.Zero(r.Len())
}

func TestRegistry_RemoveOnlyMatchingConn(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	live, stale := pipeConn(t), pipeConn(t)
	req.NoError(r.Register("Client-1", live))

	// A stale handle never evicts the live session
	req.False(r.remove("Client-1", stale))
	req.Equal(1, r.Len())

	req.True(r.remove("Client-1", live))
	req.Zero(r.Len())
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	req.NoError(r.Register("Client-1", pipeConn(t)))

	snapshot := r.Snapshot()
	r.Unregister("Client-1")
	req.NoError(r.Register("Client-2", pipeConn(t)))

	req.Len(snapshot, 1)
	req.Equal("Client-1", snapshot[0].ID)
}

func TestRegistry_DrainClosesRegistry(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	req.NoError(r.Register("Client-1", pipeConn(t)))
	req.NoError(r.Register("Client-2", pipeConn(t)))

	entries := r.Drain()

	req.Len(entries, 2)
	req.Zero(r.Len())
	req.ErrorIs(r.Register("Client-3", pipeConn(t)), ErrServerClosed)
	req.Empty(r.Drain())
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	conn := pipeConn(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := SessionID(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10000 + n})
			_ = r.Register(id, conn)
			_ = r.Snapshot()
			r.Unregister(id)
		}(i)
	}
	wg.Wait()

	req.Zero(r.Len())
}
