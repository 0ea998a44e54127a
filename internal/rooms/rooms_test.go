package rooms

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpark/realtime/internal/protocol"
)

type fakeSender struct {
	mu   sync.Mutex
	ok   bool
	sent []protocol.Message
}

func (f *fakeSender) Send(msg protocol.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ok {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeSender) setOK(ok bool) {
	f.mu.Lock()
	f.ok = ok
	f.mu.Unlock()
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "parking_7", ParkingLot(7))
	assert.Equal(t, "charging_12", ChargingStation(12))
	assert.Equal(t, "parking_feed", ParkingFeed)
	assert.Equal(t, "charging_feed", ChargingFeed)
	assert.Equal(t, "marketplace_feed", MarketplaceFeed)
}

func TestJoin_SendsAndTracks(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)

	require.True(t, r.Join(ParkingLot(7)))

	require.Len(t, s.sent, 1)
	assert.Equal(t, protocol.KindJoinRoom, s.sent[0].Type)
	assert.Equal(t, protocol.RoomData{RoomID: "parking_7"}, s.sent[0].Data)
	assert.True(t, r.Has("parking_7"))
}

func TestJoin_NotConnected(t *testing.T) {
	s := &fakeSender{ok: false}
	r := NewRegistry(s, nil)

	assert.False(t, r.Join(ParkingFeed))
	assert.False(t, r.Has(ParkingFeed))
}

func TestJoin_EmptyRoom(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)

	assert.False(t, r.Join(""))
	assert.False(t, r.Leave(""))
	assert.Empty(t, s.sent)
}

func TestLeave_UntracksEvenWhenOffline(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)
	r.Join(ChargingFeed)

	s.setOK(false)
	assert.False(t, r.Leave(ChargingFeed))
	assert.False(t, r.Has(ChargingFeed))
}

func TestLeave_SendsLeaveRoom(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)
	r.Join(MarketplaceFeed)

	require.True(t, r.Leave(MarketplaceFeed))
	require.Len(t, s.sent, 2)
	assert.Equal(t, protocol.KindLeaveRoom, s.sent[1].Type)
	assert.Equal(t, protocol.RoomData{RoomID: MarketplaceFeed}, s.sent[1].Data)
}

func TestRejoin(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)
	r.Join(ParkingLot(2))
	r.Join(ParkingLot(1))
	r.Join(ParkingLot(1))
	s.sent = nil

	assert.Equal(t, 2, r.Rejoin())
	require.Len(t, s.sent, 2)
	assert.Equal(t, protocol.RoomData{RoomID: "parking_1"}, s.sent[0].Data)
	assert.Equal(t, protocol.RoomData{RoomID: "parking_2"}, s.sent[1].Data)
}

func TestRejoin_OfflineKeepsRooms(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)
	r.Join(ParkingFeed)

	s.setOK(false)
	assert.Equal(t, 0, r.Rejoin())
	assert.Equal(t, []string{ParkingFeed}, r.Joined())
}

func TestReset(t *testing.T) {
	s := &fakeSender{ok: true}
	r := NewRegistry(s, nil)
	r.Join(ParkingFeed)
	r.Join(ChargingFeed)

	r.Reset()

	assert.Empty(t, r.Joined())
	assert.Len(t, s.sent, 2)
}
