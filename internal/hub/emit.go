package hub

import (
	"github.com/voltpark/realtime/internal/protocol"
	"github.com/voltpark/realtime/internal/rooms"
)

// ToUser queues msg on every connection authenticated as userID and returns
// how many accepted it.
func (h *Hub) ToUser(userID protocol.UserID, msg protocol.Message) int {
	frame, ok := h.encode(msg)
	if !ok {
		return 0
	}

	h.mu.RLock()
	set, found := h.users[userID]
	var targets []*Client
	if found {
		targets = set.ToSlice()
	}
	h.mu.RUnlock()

	if !found {
		h.logger.Debug("no connections for user", "user_id", userID, "type", msg.Type)
		return 0
	}

	sent := deliver(targets, frame)
	h.logger.Debug("broadcast to user", "user_id", userID, "type", msg.Type, "connections", sent)
	return sent
}

// ToRoom queues msg on every connection in roomID.
func (h *Hub) ToRoom(roomID string, msg protocol.Message) int {
	frame, ok := h.encode(msg)
	if !ok {
		return 0
	}

	h.mu.RLock()
	set, found := h.rooms[roomID]
	var targets []*Client
	if found {
		targets = set.ToSlice()
	}
	h.mu.RUnlock()

	if !found {
		h.logger.Debug("room not found", "room_id", roomID, "type", msg.Type)
		return 0
	}

	sent := deliver(targets, frame)
	h.logger.Debug("broadcast to room", "room_id", roomID, "type", msg.Type, "connections", sent)
	return sent
}

// ToAll queues msg on every connection.
func (h *Hub) ToAll(msg protocol.Message) int {
	frame, ok := h.encode(msg)
	if !ok {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := deliver(targets, frame)
	h.logger.Debug("broadcast to all", "type", msg.Type, "connections", sent)
	return sent
}

// EmitParkingUpdate publishes availability for one lot to its room and the
// parking feed.
func (h *Hub) EmitParkingUpdate(lotID int64, available, occupied int) {
	msg := protocol.Message{
		Type: protocol.KindParkingUpdate,
		Data: protocol.ParkingUpdate{
			ParkingLotID:   lotID,
			AvailableSpots: available,
			OccupiedSpots:  occupied,
			Timestamp:      h.now().UTC(),
		},
	}
	h.ToRoom(rooms.ParkingLot(lotID), msg)
	h.ToRoom(rooms.ParkingFeed, msg)
}

// EmitReservationCreated notifies the reserving user, the lot owner if
// known, and the lot's room.
func (h *Hub) EmitReservationCreated(r protocol.ReservationCreated) {
	r.Timestamp = h.now().UTC()
	msg := protocol.Message{Type: protocol.KindReservationCreated, Data: r}

	h.ToUser(r.UserID, msg)
	if r.OwnerID != 0 {
		h.ToUser(r.OwnerID, msg)
	}
	h.ToRoom(rooms.ParkingLot(r.ParkingLotID), msg)
}

// EmitChargingSessionUpdate notifies the session's user, the station room
// and the charging feed.
func (h *Hub) EmitChargingSessionUpdate(s protocol.ChargingSessionUpdate) {
	s.Timestamp = h.now().UTC()
	msg := protocol.Message{Type: protocol.KindChargingSessionUpdate, Data: s}

	h.ToUser(s.UserID, msg)
	h.ToRoom(rooms.ChargingStation(s.StationID), msg)
	h.ToRoom(rooms.ChargingFeed, msg)
}

// EmitMarketplaceTransaction notifies buyer and seller, when set, and the
// marketplace feed.
func (h *Hub) EmitMarketplaceTransaction(tx protocol.MarketplaceTransaction) {
	tx.Timestamp = h.now().UTC()
	msg := protocol.Message{Type: protocol.KindMarketplaceTransaction, Data: tx}

	if tx.BuyerID != 0 {
		h.ToUser(tx.BuyerID, msg)
	}
	if tx.SellerID != 0 {
		h.ToUser(tx.SellerID, msg)
	}
	h.ToRoom(rooms.MarketplaceFeed, msg)
}

// EmitNotification sends n to every connection of userID.
func (h *Hub) EmitNotification(userID protocol.UserID, n protocol.Notification) {
	n.Timestamp = h.now().UTC()
	h.ToUser(userID, protocol.Message{Type: protocol.KindNotification, Data: n})
}

func (h *Hub) encode(msg protocol.Message) ([]byte, bool) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("error encoding broadcast", "type", msg.Type, "error", err)
		return nil, false
	}
	return frame, true
}

func deliver(targets []*Client, frame []byte) int {
	sent := 0
	for _, c := range targets {
		if c.send(frame) {
			sent++
		}
	}
	return sent
}
