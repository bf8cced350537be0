// Package testhelpers provides common utilities and helper functions for testing the GoChat server.
//
// It starts complete relays on ephemeral ports, drives line-based TCP clients
// and WebSocket clients against them, and asserts HTTP response properties to
// reduce code duplication in test files.
package testhelpers

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/server"
)

// TestOrigin is the origin every relay started by StartRelay accepts.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every blocking read done by the helpers.
const ReadTimeout = 3 * time.Second

// Relay is a running relay with its TCP address and HTTP test server.
type Relay struct {
	Server *server.Server
	Addr   string
	HTTP   *httptest.Server
	Served <-chan error
}

// StartRelay starts a relay on an ephemeral TCP port plus an httptest server
// for its HTTP routes. Both are stopped when the test ends.
func StartRelay(t *testing.T, customize func(cfg *server.Config)) *Relay {
	t.Helper()

	cfg := server.NewConfig()
	cfg.Port = 0
	cfg.AllowedOrigins = TestOrigin
	cfg.ShutdownTimeout = 2 * time.Second
	if customize != nil {
		customize(&cfg)
	}

	srv, err := server.New(cfg, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	httpServer := httptest.NewServer(server.SetupRoutes(srv))
	t.Cleanup(httpServer.Close)
	t.Cleanup(func() { _ = srv.Shutdown(2 * time.Second) })

	return &Relay{Server: srv, Addr: ln.Addr().String(), HTTP: httpServer, Served: served}
}

// WebSocketURL converts the relay's HTTP URL into its WebSocket endpoint.
func (r *Relay) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(r.HTTP.URL, "http") + "/ws"
}

// LineClient is a raw TCP peer speaking the newline-delimited protocol.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

// DialTCP connects a LineClient to addr.
func DialTCP(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &LineClient{conn: conn, reader: bufio.NewReader(conn)}
}

// JoinTCP connects and waits for the client's own join notice, which proves
// the session is registered.
func JoinTCP(t *testing.T, addr string) *LineClient {
	t.Helper()
	c := DialTCP(t, addr)
	c.Expect(t, JoinNotice(c.ID()))
	return c
}

// ID is the identifier the relay assigns to this client.
func (c *LineClient) ID() string {
	return server.SessionID(c.conn.LocalAddr())
}

// Send writes one line.
func (c *LineClient) Send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(t, err)
}

// ReadLine returns the next line without its terminator.
func (c *LineClient) ReadLine(t *testing.T) (string, error) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	line, err := c.reader.ReadString('\n')
	return strings.TrimSuffix(line, "\n"), err
}

// Expect fails the test unless the next line equals want.
func (c *LineClient) Expect(t *testing.T, want string) {
	t.Helper()
	line, err := c.ReadLine(t)
	require.NoError(t, err)
	require.Equal(t, want, line)
}

// ExpectClosed fails the test unless the relay closed the connection.
func (c *LineClient) ExpectClosed(t *testing.T) {
	t.Helper()
	_, err := c.ReadLine(t)
	require.Error(t, err)
	var netErr net.Error
	require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open: %v", err)
}

// ExpectClosedAfterNotice fails the test unless the relay sent its capacity
// notice and then closed the connection.
func (c *LineClient) ExpectClosedAfterNotice(t *testing.T) {
	t.Helper()
	line, err := c.ReadLine(t)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, server.ServerSenderID+" Server is full"), "unexpected line %q", line)
	c.ExpectClosed(t)
}

// ExpectSilence fails the test if a line arrives within d.
func (c *LineClient) ExpectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(d)))
	line, err := c.reader.ReadString('\n')
	require.Error(t, err, "unexpected line %q", line)
}

// Close drops the connection without the exit command.
func (c *LineClient) Close() error {
	return c.conn.Close()
}

// CounterValue sums every sample of the named counter family on srv.
func CounterValue(t *testing.T, srv *server.Server, name string) float64 {
	t.Helper()
	families, err := srv.Gatherer().Gather()
	require.NoError(t, err)

	var sum float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}

// JoinNotice is the line every client receives when id joins.
func JoinNotice(id string) string {
	return server.ServerSenderID + " " + id + " has joined the chat"
}

// LeaveNotice is the line every client receives when id leaves.
func LeaveNotice(id string) string {
	return server.ServerSenderID + " " + id + " has left the chat"
}

// ConnectWebSocket creates a WebSocket connection with the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(url, headers)
}

// ReadText reads one text frame with the helper read timeout.
func ReadText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	require.Equal(t, expected, resp.Header.Get("Content-Type"), "unexpected content type")
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "failed to make request")

	return resp
}
