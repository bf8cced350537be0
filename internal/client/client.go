// Package client is the interactive terminal peer of the relay: it forwards
// typed lines to the server and prints everything the server broadcasts.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gookit/color"

	"github.com/Tyrowin/gochat/internal/server"
)

// ErrConnectionRefused is returned by Run when nothing listens on the address.
var ErrConnectionRefused = errors.New("client: connection refused")

// Config describes where and how the client connects.
type Config struct {
	Addr        string
	DialTimeout time.Duration
	Color       bool
}

// Client runs one interactive session against a relay server.
type Client struct {
	cfg Config
	in  io.Reader
	log *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	closing atomic.Bool
}

// New creates a client reading user input from in and printing to out.
func New(cfg Config, in io.Reader, out io.Writer, log *slog.Logger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, in: in, out: out, log: log}
}

// Run connects and relays until the user types /exit, input ends, the server
// closes the connection or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			c.printf("[CLIENT] Connection refused. Server at %s may not be running.\n", c.cfg.Addr)
			return fmt.Errorf("%w: %s", ErrConnectionRefused, c.cfg.Addr)
		}
		c.printf("[CLIENT] An error occurred: %v\n", err)
		return fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	c.printf("[CLIENT] Connected to server at %s\n", c.cfg.Addr)

	received := make(chan struct{})
	go func() {
		defer close(received)
		c.receive(conn)
	}()

	err = c.send(ctx, conn, received)

	c.closing.Store(true)
	if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		c.printf("[CLIENT] Error closing socket: %v\n", cerr)
	} else {
		c.printf("[CLIENT] Connection closed.\n")
	}
	<-received
	return err
}

func (c *Client) receive(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		c.printf("%s\n", c.render(scanner.Text()))
	}
	if c.closing.Load() {
		return
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.printf("[CLIENT] Error receiving message: %v\n", err)
		return
	}
	c.printf("[CLIENT] Connection to server closed.\n")
}

// send forwards input lines until one of the stop conditions.
func (c *Client) send(ctx context.Context, conn net.Conn, received <-chan struct{}) error {
	lines := make(chan string)
	inputDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-received:
				return
			}
		}
		inputDone <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-received:
			return nil
		case err := <-inputDone:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case line := <-lines:
			if strings.EqualFold(strings.TrimSpace(line), server.ExitCommand) {
				_, _ = io.WriteString(conn, server.ExitCommand+"\n")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				c.printf("[CLIENT] Error sending message: %v\n", err)
				return nil
			}
			c.log.Debug("Sent line", "bytes", len(line))
		}
	}
}

func (c *Client) render(line string) string {
	if c.cfg.Color && strings.HasPrefix(line, server.ServerSenderID) {
		return color.New(color.FgCyan).Render(line)
	}
	return line
}

func (c *Client) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
