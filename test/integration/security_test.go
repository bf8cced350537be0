// Package integration contains security-focused integration tests.
//
// These tests verify that the security constraints are properly enforced,
// including line length limits, rate limiting and idle timeouts.
package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/server"
	"github.com/Tyrowin/gochat/test/testhelpers"
)

func TestOversizedLineDisconnectsSender(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.MaxLineLength = 32 })

	observer := testhelpers.JoinTCP(t, relay.Addr)
	offender := testhelpers.JoinTCP(t, relay.Addr)
	observer.Expect(t, testhelpers.JoinNotice(offender.ID()))

	offender.Send(t, strings.Repeat("A", 200))

	observer.Expect(t, testhelpers.LeaveNotice(offender.ID()))
	offender.ExpectClosed(t)
}

func TestLineAtLimitIsDelivered(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.MaxLineLength = 32 })

	observer := testhelpers.JoinTCP(t, relay.Addr)
	sender := testhelpers.JoinTCP(t, relay.Addr)
	observer.Expect(t, testhelpers.JoinNotice(sender.ID()))

	line := strings.Repeat("B", 31)
	sender.Send(t, line)
	observer.Expect(t, sender.ID()+": "+line)
}

func TestWebSocketOversizedMessage(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.MaxLineLength = 32 })
	observer := testhelpers.JoinTCP(t, relay.Addr)

	conn, resp, err := testhelpers.ConnectWebSocket(relay.WebSocketURL(), testhelpers.TestOrigin)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()
	id := server.SessionID(conn.LocalAddr())
	observer.Expect(t, testhelpers.JoinNotice(id))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("C", 200))))

	observer.Expect(t, testhelpers.LeaveNotice(id))
}

func TestRateLimitingDropsExcessLines(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) {
		cfg.RateLimitBurst = 3
		cfg.RateLimitRefillInterval = time.Hour
	})

	observer := testhelpers.JoinTCP(t, relay.Addr)
	flooder := testhelpers.JoinTCP(t, relay.Addr)
	observer.Expect(t, testhelpers.JoinNotice(flooder.ID()))

	for i := range 10 {
		flooder.Send(t, fmt.Sprintf("flood %d", i))
	}
	flooder.Send(t, "/exit")

	for i := range 3 {
		observer.Expect(t, fmt.Sprintf("%s: flood %d", flooder.ID(), i))
	}
	observer.Expect(t, testhelpers.LeaveNotice(flooder.ID()))
}

func TestIdleTimeoutClosesSilentClient(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.IdleTimeout = 300 * time.Millisecond })

	silent := testhelpers.JoinTCP(t, relay.Addr)
	silent.ExpectClosed(t)
	require.Eventually(t, func() bool { return relay.Server.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}
