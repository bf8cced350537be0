package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/server"
)

func TestApplyServeFlags(t *testing.T) {
	req := require.New(t)
	cmd := serveCmd()
	req.NoError(cmd.ParseFlags([]string{"--port=9000", "-m", "3", "--http-addr=127.0.0.1:8080"}))

	cfg := applyServeFlags(cmd, server.NewConfig())

	req.Equal(9000, cfg.Port)
	req.Equal(3, cfg.MaxConnections)
	req.Equal("127.0.0.1:8080", cfg.HTTPAddr)
	// Flags that were not given keep the loaded value
	req.Equal("127.0.0.1", cfg.Host)
	req.Equal("INFO", cfg.LogLevel)
	req.NoError(cfg.Validate())
}
