package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpark/realtime/internal/protocol"
)

type fakeEmitter struct {
	mu            sync.Mutex
	parking       []protocol.ParkingUpdate
	reservations  []protocol.ReservationCreated
	charging      []protocol.ChargingSessionUpdate
	transactions  []protocol.MarketplaceTransaction
	notifications map[protocol.UserID][]protocol.Notification
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{notifications: make(map[protocol.UserID][]protocol.Notification)}
}

func (e *fakeEmitter) EmitParkingUpdate(lotID int64, available, occupied int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parking = append(e.parking, protocol.ParkingUpdate{ParkingLotID: lotID, AvailableSpots: available, OccupiedSpots: occupied})
}

func (e *fakeEmitter) EmitReservationCreated(r protocol.ReservationCreated) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reservations = append(e.reservations, r)
}

func (e *fakeEmitter) EmitChargingSessionUpdate(s protocol.ChargingSessionUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.charging = append(e.charging, s)
}

func (e *fakeEmitter) EmitMarketplaceTransaction(tx protocol.MarketplaceTransaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transactions = append(e.transactions, tx)
}

func (e *fakeEmitter) EmitNotification(userID protocol.UserID, n protocol.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifications[userID] = append(e.notifications[userID], n)
}

// scriptedSource replays one script per Listen call. A script that runs
// out returns its error, or blocks until ctx is done when err is nil.
type scriptedSource struct {
	mu      sync.Mutex
	scripts []script
	calls   int
}

type script struct {
	ready         bool
	notifications []Notification
	err           error
}

func (s *scriptedSource) Listen(ctx context.Context, channels []string, ready func(), handle func(Notification)) error {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	if idx >= len(s.scripts) {
		<-ctx.Done()
		return ctx.Err()
	}
	sc := s.scripts[idx]

	if sc.ready {
		ready()
	}
	for _, n := range sc.notifications {
		handle(n)
	}
	if sc.err != nil {
		return sc.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func allChannels() []string {
	return []string{
		"parking_update",
		"reservation_created",
		"charging_session_update",
		"marketplace_transaction",
		"notification",
	}
}

func TestNew_RejectsUnknownChannel(t *testing.T) {
	_, err := New(Config{Channels: []string{"parking_update", "weather"}}, &scriptedSource{}, newFakeEmitter(), nil)
	require.ErrorIs(t, err, ErrUnknownChannel)
	assert.Contains(t, err.Error(), "weather")

	_, err = New(Config{}, &scriptedSource{}, newFakeEmitter(), nil)
	require.ErrorIs(t, err, ErrNoChannels)
}

func TestRelay_ForwardsEachChannel(t *testing.T) {
	emitter := newFakeEmitter()
	r, err := New(Config{Channels: allChannels()}, &scriptedSource{}, emitter, nil)
	require.NoError(t, err)

	r.handle(Notification{Channel: "parking_update", Payload: `{"parkingLotId":5,"availableSpots":3,"occupiedSpots":7}`})
	r.handle(Notification{Channel: "reservation_created", Payload: `{"id":1,"user_id":10,"owner_id":20,"parking_lot_id":5}`})
	r.handle(Notification{Channel: "charging_session_update", Payload: `{"id":2,"user_id":10,"station_id":12,"status":"charging"}`})
	r.handle(Notification{Channel: "marketplace_transaction", Payload: `{"id":"tx-1","buyer_id":1,"seller_id":2,"amount":12.5}`})
	r.handle(Notification{Channel: "notification", Payload: `{"user_id":10,"title":"Session started","message":"Station 12"}`})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()

	require.Len(t, emitter.parking, 1)
	assert.Equal(t, protocol.ParkingUpdate{ParkingLotID: 5, AvailableSpots: 3, OccupiedSpots: 7}, emitter.parking[0])

	require.Len(t, emitter.reservations, 1)
	assert.Equal(t, protocol.UserID(20), emitter.reservations[0].OwnerID)

	require.Len(t, emitter.charging, 1)
	assert.Equal(t, int64(12), emitter.charging[0].StationID)

	require.Len(t, emitter.transactions, 1)
	assert.Equal(t, 12.5, emitter.transactions[0].Amount)

	require.Len(t, emitter.notifications[10], 1)
	assert.Equal(t, "Session started", emitter.notifications[10][0].Title)

	assert.Equal(t, Stats{Received: 5, Forwarded: 5}, r.Stats())
}

func TestRelay_DropsBadPayloads(t *testing.T) {
	emitter := newFakeEmitter()
	r, err := New(Config{Channels: allChannels()}, &scriptedSource{}, emitter, nil)
	require.NoError(t, err)

	for _, n := range []Notification{
		{Channel: "parking_update", Payload: `not json`},
		{Channel: "parking_update", Payload: `{"availableSpots":3}`},
		{Channel: "reservation_created", Payload: `{"id":1}`},
		{Channel: "charging_session_update", Payload: `{"id":2}`},
		{Channel: "notification", Payload: `{"title":"no recipient"}`},
		{Channel: "weather", Payload: `{}`},
	} {
		r.handle(n)
	}

	stats := r.Stats()
	assert.Equal(t, int64(6), stats.Received)
	assert.Equal(t, int64(6), stats.Dropped)
	assert.Equal(t, int64(0), stats.Forwarded)
	assert.Empty(t, emitter.parking)
	assert.Empty(t, emitter.notifications)
}

func TestRelay_RunRestartsAfterFailure(t *testing.T) {
	emitter := newFakeEmitter()
	source := &scriptedSource{scripts: []script{
		{err: errors.New("connection refused")},
		{ready: true, notifications: []Notification{
			{Channel: "parking_update", Payload: `{"parkingLotId":1,"availableSpots":1}`},
		}, err: errors.New("connection reset")},
		{ready: true, notifications: []Notification{
			{Channel: "parking_update", Payload: `{"parkingLotId":2,"availableSpots":2}`},
		}},
	}}

	r, err := New(Config{
		Channels:           []string{"parking_update"},
		ReconnectBaseDelay: time.Millisecond,
		ReconnectMaxDelay:  5 * time.Millisecond,
	}, source, emitter, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.parking) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, 3, source.callCount())
	assert.Equal(t, int64(2), r.Stats().Restarts)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	r, err := New(Config{Channels: []string{"notification"}}, &scriptedSource{}, newFakeEmitter(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, r.Run(ctx))
	assert.Equal(t, int64(0), r.Stats().Restarts)
}
