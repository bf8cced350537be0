package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestHealthHandlerUnit verifies that the health handler answers every method
// with the same plain text body.
func TestHealthHandlerUnit(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "GET request to health endpoint",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedBody:   "GoChat server is running!",
		},
		{
			name:           "POST request to health endpoint",
			method:         http.MethodPost,
			expectedStatus: http.StatusOK,
			expectedBody:   "GoChat server is running!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "/", http.NoBody)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			HealthHandler(rr, req)

			require.Equal(t, tt.expectedStatus, rr.Code)
			require.Equal(t, tt.expectedBody, rr.Body.String())
			require.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
		})
	}
}

func TestStatusHandler(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, func(c *Config) { c.MaxConnections = 3 })
	req.NoError(srv.Registry().Register("Client-a", pipeConn(t)))
	srv.queue.Push(ServerSenderID, "pending")

	rr := httptest.NewRecorder()
	StatusHandler(srv)(rr, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	req.Equal(http.StatusOK, rr.Code)
	var status Status
	req.NoError(json.NewDecoder(rr.Body).Decode(&status))
	req.Equal(Status{Running: true, Clients: 1, Capacity: 3, Queued: 1, IDs: []string{"Client-a"}}, status)
}

func TestStatusHandler_StoppedServer(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	req.NoError(srv.Shutdown(time.Second))

	rr := httptest.NewRecorder()
	StatusHandler(srv)(rr, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	req.Equal(http.StatusServiceUnavailable, rr.Code)
}

func TestGateway_MethodNotAllowed(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	NewGateway(srv).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ws", http.NoBody))

	req.Equal(http.StatusMethodNotAllowed, rr.Code)
}

func TestSetupRoutes_Metrics(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(SetupRoutes(srv))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)

	req.Equal(http.StatusOK, resp.StatusCode)
	req.True(strings.Contains(string(body), "gochat_active_sessions"))
}
