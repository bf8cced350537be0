// Package integration contains integration tests for the GoChat server.
//
// These tests verify that multiple components work together correctly by testing
// the complete system behavior with real TCP listeners, HTTP servers and
// WebSocket connections.
package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/server"
	"github.com/Tyrowin/gochat/test/testhelpers"
)

// TestCapacityTwoScenario walks through admission, broadcast, rejection and
// re-admission on a relay with two slots.
func TestCapacityTwoScenario(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.MaxConnections = 2 })

	// Given A is alone and says hello
	a := testhelpers.JoinTCP(t, relay.Addr)
	a.Send(t, "hello")
	req.Eventually(func() bool {
		return testhelpers.CounterValue(t, relay.Server, "gochat_messages_enqueued_total") == 2 &&
			relay.Server.Status().Queued == 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// When B joins, its first line is its own join notice: nothing is replayed
	b := testhelpers.JoinTCP(t, relay.Addr)
	a.Expect(t, testhelpers.JoinNotice(b.ID()))

	// When B says hi, A hears it and B gets no echo
	b.Send(t, "hi")
	a.Expect(t, b.ID()+": hi")
	a.Send(t, "hello again")
	b.Expect(t, a.ID()+": hello again")

	// When C connects beyond capacity it is refused
	c := testhelpers.DialTCP(t, relay.Addr)
	c.Expect(t, "[SERVER] Server is full (max 2 clients). Try again later.")
	c.ExpectClosed(t)
	req.Equal(2, relay.Server.ActiveSessions())

	// When A exits, B sees exactly one leave notice and the slot frees up
	a.Send(t, "/exit")
	a.ExpectClosed(t)
	b.Expect(t, testhelpers.LeaveNotice(a.ID()))
	req.Eventually(func() bool { return relay.Server.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	d := testhelpers.JoinTCP(t, relay.Addr)
	b.Expect(t, testhelpers.JoinNotice(d.ID()))
	req.Equal(2, relay.Server.ActiveSessions())
}

func TestFiveClientsSendingAndReceiving(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	clients := make([]*testhelpers.LineClient, 0, 5)
	for range 5 {
		c := testhelpers.JoinTCP(t, relay.Addr)
		for _, existing := range clients {
			existing.Expect(t, testhelpers.JoinNotice(c.ID()))
		}
		clients = append(clients, c)
	}

	for i, c := range clients {
		c.Send(t, fmt.Sprintf("message %d", i))
	}

	for i, c := range clients {
		received := map[string]bool{}
		for range len(clients) - 1 {
			line, err := c.ReadLine(t)
			require.NoError(t, err)
			received[line] = true
		}
		for j, sender := range clients {
			want := fmt.Sprintf("%s: message %d", sender.ID(), j)
			require.Equal(t, i != j, received[want], "client %d and message %d", i, j)
		}
		c.ExpectSilence(t, 50*time.Millisecond)
	}
}

func TestPerProducerOrderIsPreserved(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	producer := testhelpers.JoinTCP(t, relay.Addr)
	consumer := testhelpers.JoinTCP(t, relay.Addr)
	producer.Expect(t, testhelpers.JoinNotice(consumer.ID()))

	const count = 100
	for i := range count {
		producer.Send(t, fmt.Sprintf("line-%03d", i))
	}
	for i := range count {
		consumer.Expect(t, fmt.Sprintf("%s: line-%03d", producer.ID(), i))
	}
}

// TestCrossClientOrderIsPreserved checks that a third client sees lines from
// two producers in the order the relay received them.
func TestCrossClientOrderIsPreserved(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	a := testhelpers.JoinTCP(t, relay.Addr)
	b := testhelpers.JoinTCP(t, relay.Addr)
	a.Expect(t, testhelpers.JoinNotice(b.ID()))
	c := testhelpers.JoinTCP(t, relay.Addr)
	a.Expect(t, testhelpers.JoinNotice(c.ID()))
	b.Expect(t, testhelpers.JoinNotice(c.ID()))

	a.Send(t, "m1")
	a.Send(t, "m2")
	b.Expect(t, a.ID()+": m1")
	b.Expect(t, a.ID()+": m2")
	b.Send(t, "m3")

	c.Expect(t, a.ID()+": m1")
	c.Expect(t, a.ID()+": m2")
	c.Expect(t, b.ID()+": m3")
	a.Expect(t, b.ID()+": m3")
}

func TestAbruptDisconnectReleasesSlot(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.MaxConnections = 2 })

	stayer := testhelpers.JoinTCP(t, relay.Addr)
	leaver := testhelpers.JoinTCP(t, relay.Addr)
	stayer.Expect(t, testhelpers.JoinNotice(leaver.ID()))

	// When the peer disappears without the exit command
	req.NoError(leaver.Close())

	stayer.Expect(t, testhelpers.LeaveNotice(leaver.ID()))
	req.Eventually(func() bool { return relay.Server.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{stayer.ID()}, relay.Server.Registry().IDs())

	// And a follow-up message still reaches the new peer only once
	newcomer := testhelpers.JoinTCP(t, relay.Addr)
	stayer.Expect(t, testhelpers.JoinNotice(newcomer.ID()))
	stayer.Send(t, "welcome")
	newcomer.Expect(t, stayer.ID()+": welcome")
	newcomer.ExpectSilence(t, 50*time.Millisecond)
}

func TestExitCommandIsNotBroadcast(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	a := testhelpers.JoinTCP(t, relay.Addr)
	b := testhelpers.JoinTCP(t, relay.Addr)
	a.Expect(t, testhelpers.JoinNotice(b.ID()))

	a.Send(t, "")
	a.Send(t, "/Exit")

	b.Expect(t, testhelpers.LeaveNotice(a.ID()))
	b.ExpectSilence(t, 50*time.Millisecond)
}
