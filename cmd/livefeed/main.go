// livefeed connects to the realtime hub, joins rooms and prints every event
// to the console.
// Usage: go run ./cmd/livefeed --url ws://localhost:3000/ws --user 42 --room parking_feed
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/voltpark/realtime/internal/config"
	"github.com/voltpark/realtime/internal/connection"
	"github.com/voltpark/realtime/internal/eventbus"
	"github.com/voltpark/realtime/internal/feeds"
	"github.com/voltpark/realtime/internal/protocol"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (built-in defaults when empty)")
	wsURL := pflag.String("url", "", "override client.ws_url")
	userID := pflag.Int64("user", 0, "override client.user_id")
	rooms := pflag.StringSlice("room", nil, "room to join, repeatable (adds to client.rooms)")
	verbose := pflag.BoolP("verbose", "v", false, "print full message JSON")
	pflag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *wsURL != "" {
		cfg.Client.WSURL = *wsURL
	}
	if *userID != 0 {
		cfg.Client.UserID = *userID
	}
	cfg.Client.Rooms = append(cfg.Client.Rooms, *rooms...)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// A tail is long-lived, so rooms always follow reconnects.
	mgr := connection.NewManager(connection.Config{
		URL:                  cfg.Client.WSURL,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Client.ReconnectBaseDelay,
		AutoRejoin:           true,
		HandshakeTimeout:     cfg.Client.HandshakeTimeout,
		WriteTimeout:         cfg.Client.WriteTimeout,
		PingInterval:         cfg.Client.PingInterval,
		PingTimeout:          cfg.Client.PingTimeout,
	}, logger)

	bus := mgr.Bus()
	status := feeds.NewStatus(bus, false, func(connected bool) {
		logger.Info("connection status changed", "connected", connected)
	})
	defer status.Close()

	notifications := feeds.NewNotificationCenter(bus, func(n *protocol.Notification) {
		fmt.Printf("[NOTIFICATION] %s: %s\n", n.Title, n.Message)
	})
	defer notifications.Close()

	var joinOnce sync.Once
	bus.OnFunc(protocol.KindConnected, func(eventbus.Event) {
		joinOnce.Do(func() {
			for _, room := range cfg.Client.Rooms {
				mgr.JoinRoom(room)
			}
		})
	})

	var exitCode atomic.Int32
	bus.OnFunc(protocol.KindReconnectFailed, func(e eventbus.Event) {
		logger.Error("giving up on realtime hub", "data", e.Data)
		exitCode.Store(1)
		cancel()
	})
	bus.OnFunc(protocol.KindDisconnected, func(e eventbus.Event) {
		if d, ok := e.Data.(*protocol.DisconnectedData); ok {
			logger.Info("disconnected", "code", d.Code, "reason", d.Reason)
		}
	})

	var received atomic.Int64
	bus.OnFunc(protocol.KindMessage, func(e eventbus.Event) {
		received.Add(1)
		if *verbose {
			printEnvelope(e.Data)
		}
	})

	if !*verbose {
		subscribePrinters(bus)
	}

	mgr.Connect("", protocol.UserID(cfg.Client.UserID))

	// Stats printer
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"state", mgr.State(),
					"connected", status.Connected(),
					"authenticated", mgr.IsAuthenticated(),
					"rooms", mgr.Rooms(),
					"messages", received.Load(),
					"notifications", notifications.Len(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop",
		"url", cfg.Client.WSURL,
		"user_id", cfg.Client.UserID,
		"rooms", cfg.Client.Rooms,
	)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	mgr.Stop(shutdownCtx)

	logger.Info("shutdown complete", "messages", received.Load())
	os.Exit(int(exitCode.Load()))
}

func printEnvelope(data any) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Printf("[UNPRINTABLE] %v\n", err)
		return
	}
	fmt.Printf("%s\n", out)
}

func subscribePrinters(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, protocol.KindParkingUpdate, func(u *protocol.ParkingUpdate) {
		fmt.Printf("[PARKING] lot=%d available=%d occupied=%d\n",
			u.ParkingLotID, u.AvailableSpots, u.OccupiedSpots)
	})
	eventbus.Subscribe(bus, protocol.KindReservationCreated, func(r *protocol.ReservationCreated) {
		fmt.Printf("[RESERVATION] id=%d lot=%d user=%d status=%s\n",
			r.ID, r.ParkingLotID, r.UserID, r.Status)
	})
	eventbus.Subscribe(bus, protocol.KindChargingSessionUpdate, func(s *protocol.ChargingSessionUpdate) {
		fmt.Printf("[CHARGING] session=%d station=%d status=%s energy=%.2fkWh\n",
			s.ID, s.StationID, s.Status, s.EnergyKWh)
	})
	eventbus.Subscribe(bus, protocol.KindMarketplaceTransaction, func(tx *protocol.MarketplaceTransaction) {
		fmt.Printf("[MARKET] tx=%s asset=%s amount=%.2f\n", tx.ID, tx.AssetID, tx.Amount)
	})
	eventbus.Subscribe(bus, protocol.KindJoinedRoom, func(j *protocol.JoinedRoom) {
		fmt.Printf("[JOINED] %s\n", j.RoomID)
	})
	eventbus.Subscribe(bus, protocol.KindError, func(e *protocol.ServerError) {
		fmt.Printf("[SERVER ERROR] %s\n", e.Message)
	})
	eventbus.Subscribe(bus, protocol.KindAuthError, func(e *protocol.ServerError) {
		fmt.Printf("[AUTH ERROR] %s\n", e.Message)
	})
}
