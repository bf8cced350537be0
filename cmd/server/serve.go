package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gochat/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay",
		Long: `Start the chat relay on a TCP address.

Configuration is read from the environment (and an optional .env file);
flags override it.

Examples:
  gochat serve
  gochat serve --port=9000 --max-connections=10
  gochat serve --http-addr=127.0.0.1:8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), applyServeFlags(cmd, cfg))
		},
	}

	cmd.Flags().StringP("host", "H", "", "Host to bind to (default from HOST)")
	cmd.Flags().IntP("port", "p", 0, "TCP port to listen on (default from PORT)")
	cmd.Flags().IntP("max-connections", "m", 0, "Maximum concurrent clients (default from MAX_CONNECTIONS)")
	cmd.Flags().String("http-addr", "", "Address of the health, metrics and WebSocket listener")
	cmd.Flags().String("log-level", "", "DEBUG, INFO, WARN or ERROR")

	return cmd
}

// applyServeFlags overrides cfg with the flags that were set explicitly.
func applyServeFlags(cmd *cobra.Command, cfg server.Config) server.Config {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections, _ = flags.GetInt("max-connections")
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr, _ = flags.GetString("http-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg
}

func runServe(ctx context.Context, cfg server.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logs.GetLoggerFromString(strings.ToUpper(cfg.LogLevel))

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpSrv = server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(srv))
		g.Go(func() error {
			return server.StartServer(httpSrv, log)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal")
		if httpSrv != nil {
			_ = server.ShutdownServer(httpSrv, cfg.ShutdownTimeout, log)
		}
		if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
