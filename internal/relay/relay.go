// Package relay forwards Postgres NOTIFY events to the hub.
//
// Writers publish with pg_notify('<channel>', '<json>'), where channel is
// one of the event kinds (parking_update, reservation_created,
// charging_session_update, marketplace_transaction, notification) and the
// payload is the event body the hub broadcasts.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/voltpark/realtime/internal/protocol"
)

// Errors
var (
	ErrUnknownChannel = errors.New("unknown relay channel")
	ErrNoChannels     = errors.New("no relay channels configured")
)

// Emitter is the part of hub.Hub the relay publishes to.
type Emitter interface {
	EmitParkingUpdate(lotID int64, available, occupied int)
	EmitReservationCreated(r protocol.ReservationCreated)
	EmitChargingSessionUpdate(s protocol.ChargingSessionUpdate)
	EmitMarketplaceTransaction(tx protocol.MarketplaceTransaction)
	EmitNotification(userID protocol.UserID, n protocol.Notification)
}

// Notification is one NOTIFY delivery.
type Notification struct {
	Channel string
	Payload string
}

// Source delivers notifications. Listen calls ready once every channel is
// being listened on, then handle for each notification, and blocks until ctx
// is done or the underlying connection fails.
type Source interface {
	Listen(ctx context.Context, channels []string, ready func(), handle func(Notification)) error
}

// Config configures the Relay.
type Config struct {
	Channels           []string
	ReconnectBaseDelay time.Duration // Attempt N waits N * base
	ReconnectMaxDelay  time.Duration
}

// Stats counts processed notifications.
type Stats struct {
	Received  int64
	Forwarded int64
	Dropped   int64
	Restarts  int64
}

// Relay listens on a Source and forwards to an Emitter.
type Relay struct {
	cfg     Config
	source  Source
	emitter Emitter
	logger  *slog.Logger

	handlers map[string]func([]byte) error

	received  atomic.Int64
	forwarded atomic.Int64
	dropped   atomic.Int64
	restarts  atomic.Int64
}

// New creates a Relay. Every configured channel must be a known event kind.
func New(cfg Config, source Source, emitter Emitter, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 2 * time.Second
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectBaseDelay
	}

	r := &Relay{
		cfg:     cfg,
		source:  source,
		emitter: emitter,
		logger:  logger.With("component", "relay"),
	}

	all := r.allHandlers()
	r.handlers = make(map[string]func([]byte) error, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		h, ok := all[ch]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
		}
		r.handlers[ch] = h
	}

	return r, nil
}

// Run listens until ctx is done. When the source fails it is restarted after
// a linearly growing delay, capped at ReconnectMaxDelay. The delay resets
// once a listen session is established.
func (r *Relay) Run(ctx context.Context) error {
	attempt := 0

	for {
		ready := func() {
			attempt = 0
			r.logger.Info("relay listening", "channels", r.cfg.Channels)
		}

		err := r.source.Listen(ctx, r.cfg.Channels, ready, r.handle)
		if ctx.Err() != nil {
			r.logger.Info("relay stopped")
			return nil
		}

		attempt++
		r.restarts.Add(1)
		delay := min(r.cfg.ReconnectBaseDelay*time.Duration(attempt), r.cfg.ReconnectMaxDelay)

		r.logger.Warn("relay listen failed, restarting",
			"error", err,
			"attempt", attempt,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Stats returns the counters since New.
func (r *Relay) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Forwarded: r.forwarded.Load(),
		Dropped:   r.dropped.Load(),
		Restarts:  r.restarts.Load(),
	}
}

func (r *Relay) handle(n Notification) {
	r.received.Add(1)

	h, ok := r.handlers[n.Channel]
	if !ok {
		r.dropped.Add(1)
		r.logger.Warn("notification on unexpected channel", "channel", n.Channel)
		return
	}

	if err := h([]byte(n.Payload)); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("dropping notification",
			"channel", n.Channel,
			"error", err,
			"size", len(n.Payload),
		)
		return
	}

	r.forwarded.Add(1)
	r.logger.Debug("notification forwarded", "channel", n.Channel)
}

// notificationPayload is a user notification plus its recipient.
type notificationPayload struct {
	UserID protocol.UserID `json:"user_id"`
	protocol.Notification
}

func (r *Relay) allHandlers() map[string]func([]byte) error {
	return map[string]func([]byte) error{
		string(protocol.KindParkingUpdate): func(data []byte) error {
			var u protocol.ParkingUpdate
			if err := json.Unmarshal(data, &u); err != nil {
				return err
			}
			if u.ParkingLotID == 0 {
				return errors.New("parkingLotId is required")
			}
			r.emitter.EmitParkingUpdate(u.ParkingLotID, u.AvailableSpots, u.OccupiedSpots)
			return nil
		},
		string(protocol.KindReservationCreated): func(data []byte) error {
			var res protocol.ReservationCreated
			if err := json.Unmarshal(data, &res); err != nil {
				return err
			}
			if res.ParkingLotID == 0 {
				return errors.New("parking_lot_id is required")
			}
			r.emitter.EmitReservationCreated(res)
			return nil
		},
		string(protocol.KindChargingSessionUpdate): func(data []byte) error {
			var s protocol.ChargingSessionUpdate
			if err := json.Unmarshal(data, &s); err != nil {
				return err
			}
			if s.StationID == 0 {
				return errors.New("station_id is required")
			}
			r.emitter.EmitChargingSessionUpdate(s)
			return nil
		},
		string(protocol.KindMarketplaceTransaction): func(data []byte) error {
			var tx protocol.MarketplaceTransaction
			if err := json.Unmarshal(data, &tx); err != nil {
				return err
			}
			r.emitter.EmitMarketplaceTransaction(tx)
			return nil
		},
		string(protocol.KindNotification): func(data []byte) error {
			var p notificationPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			if p.UserID == 0 {
				return errors.New("user_id is required")
			}
			r.emitter.EmitNotification(p.UserID, p.Notification)
			return nil
		},
	}
}
