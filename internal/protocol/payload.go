package protocol

import "time"

// UserID identifies an authenticated user. Zero means anonymous.
type UserID int64

// AuthenticateData is the payload of an authenticate request.
type AuthenticateData struct {
	UserID UserID `json:"userId"`
}

// RoomData is the payload of join_room and leave_room.
type RoomData struct {
	RoomID string `json:"roomId"`
}

// Authenticated acknowledges an authenticate request.
type Authenticated struct {
	UserID    UserID    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// JoinedRoom acknowledges a join_room request.
type JoinedRoom struct {
	RoomID    string    `json:"roomId"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ServerError is sent by the hub for rejected or malformed requests.
type ServerError struct {
	Message string `json:"message"`
}

// ParkingUpdate reports spot availability for one parking lot.
type ParkingUpdate struct {
	ParkingLotID   int64     `json:"parkingLotId"`
	AvailableSpots int       `json:"availableSpots"`
	OccupiedSpots  int       `json:"occupiedSpots"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}

// ReservationCreated announces a new reservation.
type ReservationCreated struct {
	ID           int64     `json:"id"`
	UserID       UserID    `json:"user_id"`
	OwnerID      UserID    `json:"owner_id,omitempty"`
	ParkingLotID int64     `json:"parking_lot_id"`
	StartTime    string    `json:"start_time,omitempty"`
	EndTime      string    `json:"end_time,omitempty"`
	Status       string    `json:"status,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// ChargingSessionUpdate reports the state of a charging session.
type ChargingSessionUpdate struct {
	ID          int64     `json:"id"`
	UserID      UserID    `json:"user_id"`
	StationID   int64     `json:"station_id"`
	Status      string    `json:"status"`
	EnergyKWh   float64   `json:"energy_kwh,omitempty"`
	PowerKW     float64   `json:"power_kw,omitempty"`
	BatteryPct  float64   `json:"battery_percent,omitempty"`
	TotalAmount float64   `json:"total_amount,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// MarketplaceTransaction reports a trade of a tokenized parking asset.
type MarketplaceTransaction struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id,omitempty"`
	BuyerID   UserID    `json:"buyer_id,omitempty"`
	SellerID  UserID    `json:"seller_id,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Notification is a user-targeted message.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Level     string    `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ConnectedData is emitted locally when the transport opens.
type ConnectedData struct {
	Timestamp time.Time `json:"timestamp"`
}

// DisconnectedData is emitted locally when the transport closes.
type DisconnectedData struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// ReconnectFailedData is emitted once max reconnect attempts are spent.
type ReconnectFailedData struct {
	Attempts int `json:"attempts"`
}
