// Package feeds adapts the connection manager into per-topic subscriptions:
// join a room, listen for its event type, and undo both with one call.
package feeds

import (
	"github.com/voltpark/realtime/internal/eventbus"
	"github.com/voltpark/realtime/internal/protocol"
	"github.com/voltpark/realtime/internal/rooms"
)

// Client is the part of connection.Manager the feeds need.
type Client interface {
	JoinRoom(roomID string) bool
	LeaveRoom(roomID string) bool
	Bus() *eventbus.Bus
}

// CancelFunc leaves the feed's room and removes its listener.
type CancelFunc func()

// ParkingLot follows one lot. fn only sees updates whose ParkingLotID is
// lotID. A zero lotID subscribes to nothing.
func ParkingLot(c Client, lotID int64, fn func(*protocol.ParkingUpdate)) CancelFunc {
	if lotID == 0 || fn == nil {
		return func() {}
	}
	return follow(c, rooms.ParkingLot(lotID), protocol.KindParkingUpdate, func(u *protocol.ParkingUpdate) {
		if u.ParkingLotID == lotID {
			fn(u)
		}
	})
}

// ParkingFeed follows every parking lot.
func ParkingFeed(c Client, fn func(*protocol.ParkingUpdate)) CancelFunc {
	if fn == nil {
		return func() {}
	}
	return follow(c, rooms.ParkingFeed, protocol.KindParkingUpdate, fn)
}

// ChargingStation follows one station. fn only sees sessions whose
// StationID is stationID.
func ChargingStation(c Client, stationID int64, fn func(*protocol.ChargingSessionUpdate)) CancelFunc {
	if stationID == 0 || fn == nil {
		return func() {}
	}
	return follow(c, rooms.ChargingStation(stationID), protocol.KindChargingSessionUpdate, func(u *protocol.ChargingSessionUpdate) {
		if u.StationID == stationID {
			fn(u)
		}
	})
}

// ChargingFeed follows every charging session.
func ChargingFeed(c Client, fn func(*protocol.ChargingSessionUpdate)) CancelFunc {
	if fn == nil {
		return func() {}
	}
	return follow(c, rooms.ChargingFeed, protocol.KindChargingSessionUpdate, fn)
}

// MarketplaceFeed follows marketplace transactions.
func MarketplaceFeed(c Client, fn func(*protocol.MarketplaceTransaction)) CancelFunc {
	if fn == nil {
		return func() {}
	}
	return follow(c, rooms.MarketplaceFeed, protocol.KindMarketplaceTransaction, fn)
}

// follow subscribes before joining so no update sent in response to the
// join is missed.
func follow[T any](c Client, room string, kind protocol.Kind, fn func(T)) CancelFunc {
	unsubscribe := eventbus.Subscribe(c.Bus(), kind, fn)
	c.JoinRoom(room)

	return func() {
		c.LeaveRoom(room)
		unsubscribe()
	}
}
