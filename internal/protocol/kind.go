package protocol

// Kind names a message or locally synthesized event.
type Kind string

// Client → server.
const (
	KindAuthenticate Kind = "authenticate"
	KindJoinRoom     Kind = "join_room"
	KindLeaveRoom    Kind = "leave_room"
	KindPing         Kind = "ping"
)

// Server → client.
const (
	KindAuthenticated          Kind = "authenticated"
	KindAuthError              Kind = "auth_error"
	KindJoinedRoom             Kind = "joined_room"
	KindPong                   Kind = "pong"
	KindParkingUpdate          Kind = "parking_update"
	KindReservationCreated     Kind = "reservation_created"
	KindChargingSessionUpdate  Kind = "charging_session_update"
	KindMarketplaceTransaction Kind = "marketplace_transaction"
	KindNotification           Kind = "notification"
	KindError                  Kind = "error"
)

// Local events. KindConnected doubles as the hub's welcome frame.
const (
	KindConnected       Kind = "connected"
	KindDisconnected    Kind = "disconnected"
	KindReconnectFailed Kind = "reconnect_failed"

	// KindMessage receives every decoded inbound envelope after the
	// type-specific listeners have run.
	KindMessage Kind = "message"
)

// Local reports whether k is synthesized by the client rather than sent by a server.
func (k Kind) Local() bool {
	switch k {
	case KindDisconnected, KindReconnectFailed, KindMessage:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }
