/*
Package main is the entry point for the chat relay.

It loads configuration, initializes the global logging system, starts the hub event loop and the
HTTP server, and shuts both down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/configs"
	"chatrelay/internal/handler"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/netx"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("port_retries", cfg.PortRetries).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("version", cfg.Version).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	hub := chat.NewHub(chat.HubConfig{})

	ln, port, err := netx.Listen("", cfg.Port, cfg.PortRetries)
	if err != nil {
		logx.Fatal(err, "Server failed to bind a port", "port", cfg.Port, "port_retries", cfg.PortRetries)
	}

	deps := &handler.AppDeps{
		Hub:       hub,
		Config:    cfg,
		StartedAt: startedAt,
	}

	// No WriteTimeout: it would cut long-lived WebSocket connections. Each client's write pump
	// sets its own per-frame deadline instead.
	server := &http.Server{
		Handler:           handler.Router(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logx.Info(fmt.Sprintf("Chat relay listening on http://localhost:%d", port))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logx.Fatal(err, "Server stopped with error")
	}

	logx.Info("Server gracefully stopped.")
}
