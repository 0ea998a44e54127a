// Package rooms names the logical topics multiplexed over the realtime
// connection and tracks which of them this client has asked to join.
//
// Joining and leaving are plain outbound messages. The server does not have
// to acknowledge them and nothing here waits for an acknowledgement.
package rooms

import (
	"fmt"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/voltpark/realtime/internal/protocol"
)

// Well-known feed rooms.
const (
	ParkingFeed     = "parking_feed"
	ChargingFeed    = "charging_feed"
	MarketplaceFeed = "marketplace_feed"
)

// ParkingLot returns the room carrying updates for one parking lot.
func ParkingLot(lotID int64) string {
	return fmt.Sprintf("parking_%d", lotID)
}

// ChargingStation returns the room carrying updates for one charging station.
func ChargingStation(stationID int64) string {
	return fmt.Sprintf("charging_%d", stationID)
}

// Sender writes a message to the server and reports whether it was written.
type Sender interface {
	Send(msg protocol.Message) bool
}

// Registry sends join/leave intents and remembers the rooms whose join was
// written successfully, so they can be re-sent after a reconnect.
type Registry struct {
	sender Sender
	logger *slog.Logger
	joined mapset.Set[string]
}

// NewRegistry creates a Registry that writes through sender.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sender: sender,
		logger: logger,
		joined: mapset.NewSet[string](),
	}
}

// Join sends join_room for roomID. It returns false without sending when
// roomID is empty or the message could not be written.
func (r *Registry) Join(roomID string) bool {
	if roomID == "" {
		r.logger.Warn("cannot join room - empty room id")
		return false
	}

	if !r.sender.Send(roomMessage(protocol.KindJoinRoom, roomID)) {
		return false
	}
	r.joined.Add(roomID)
	r.logger.Debug("joined room", "room_id", roomID)
	return true
}

// Leave forgets roomID and sends leave_room for it.
func (r *Registry) Leave(roomID string) bool {
	if roomID == "" {
		r.logger.Warn("cannot leave room - empty room id")
		return false
	}

	r.joined.Remove(roomID)
	ok := r.sender.Send(roomMessage(protocol.KindLeaveRoom, roomID))
	if ok {
		r.logger.Debug("left room", "room_id", roomID)
	}
	return ok
}

// Rejoin re-sends join_room for every tracked room and returns how many
// were written. Rooms that fail to send stay tracked.
func (r *Registry) Rejoin() int {
	sent := 0
	for _, roomID := range r.Joined() {
		if r.sender.Send(roomMessage(protocol.KindJoinRoom, roomID)) {
			sent++
		}
	}
	if sent > 0 {
		r.logger.Info("rejoined rooms", "count", sent)
	}
	return sent
}

// Has reports whether roomID is tracked as joined.
func (r *Registry) Has(roomID string) bool {
	return r.joined.Contains(roomID)
}

// Joined returns the tracked rooms in sorted order.
func (r *Registry) Joined() []string {
	rooms := r.joined.ToSlice()
	slices.Sort(rooms)
	return rooms
}

// Reset forgets every tracked room without sending anything.
func (r *Registry) Reset() {
	r.joined.Clear()
}

func roomMessage(kind protocol.Kind, roomID string) protocol.Message {
	return protocol.Message{Type: kind, Data: protocol.RoomData{RoomID: roomID}}
}
