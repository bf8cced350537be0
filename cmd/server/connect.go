package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat/internal/client"
)

func connectCmd() *cobra.Command {
	var (
		host     string
		port     int
		noColor  bool
		timeout  time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a relay as an interactive client",
		Long: `Connect to a relay and chat from the terminal.

Type a line and press enter to send it. Type /exit to leave.

Examples:
  gochat connect
  gochat connect --host=10.0.0.5 --port=9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := client.New(client.Config{
				Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
				DialTimeout: timeout,
				Color:       !noColor,
			}, os.Stdin, os.Stdout, logs.GetLoggerFromString(strings.ToUpper(logLevel)))

			err := c.Run(ctx)
			if errors.Is(err, client.ErrConnectionRefused) {
				// already reported to the user
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "127.0.0.1", "Server host")
	cmd.Flags().IntVarP(&port, "port", "p", 8888, "Server port")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable coloured server notices")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Dial timeout")
	cmd.Flags().StringVar(&logLevel, "log-level", "WARN", "DEBUG, INFO, WARN or ERROR")

	return cmd
}
