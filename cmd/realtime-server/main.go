// realtime-server accepts websocket clients at /ws and fans parking,
// charging, marketplace and notification events out to them.
// Usage: go run ./cmd/realtime-server --config configs/server.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/voltpark/realtime/internal/config"
	"github.com/voltpark/realtime/internal/database"
	"github.com/voltpark/realtime/internal/hub"
	"github.com/voltpark/realtime/internal/relay"
	"github.com/voltpark/realtime/internal/version"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (built-in defaults when empty)")
	listenAddr := pflag.String("listen", "", "override server.listen_addr")
	verbose := pflag.BoolP("verbose", "v", false, "log at debug level")
	pflag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	level := cfg.Log.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting realtime server",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	h := hub.New(hub.Config{
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		WriteTimeout:      cfg.Server.WriteTimeout,
		SendBuffer:        cfg.Server.SendBuffer,
		MaxSendBuffer:     cfg.Server.MaxSendBuffer,
		MaxMessageSize:    cfg.Server.MaxMessageSize,
		CheckOrigin:       originChecker(cfg.Server.AllowedOrigins),
	}, logger.With("component", "hub"))

	var (
		pool *pgxpool.Pool
		rl   *relay.Relay
	)
	if cfg.Relay.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		rl, err = relay.New(relay.Config{
			Channels:           cfg.Relay.Channels,
			ReconnectBaseDelay: cfg.Relay.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Relay.ReconnectMaxDelay,
		}, relay.NewPostgresSource(pool), h, logger)
		if err != nil {
			logger.Error("failed to create relay", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           newMux(h, pool, rl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.Run(gctx)
	})

	if rl != nil {
		g.Go(func() error {
			return rl.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		logger.Info("shutting down...")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("realtime server stopped")
}
