package protocol

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// RawMessage is an undecoded JSON value.
type RawMessage = json.RawMessage

// Errors
var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingType = errors.New("message has no type")
)

// Envelope is an inbound frame before payload decoding.
type Envelope struct {
	Type Kind       `json:"type"`
	Data RawMessage `json:"data,omitempty"`

	// Fields carries top-level keys other than type and data. The hub sends
	// some acknowledgements (authenticated, joined_room, error) flat.
	Fields map[string]RawMessage `json:"-"`
}

// Message is an outbound frame.
type Message struct {
	Type Kind `json:"type"`
	Data any  `json:"data,omitempty"`
}

// Encode serializes m as a single text frame.
func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, ErrMissingType
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return data, nil
}

// DecodeEnvelope parses a frame into an Envelope without touching the payload.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyFrame
	}

	var fields map[string]RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	var env Envelope
	rawType, ok := fields["type"]
	if !ok {
		return Envelope{}, ErrMissingType
	}
	if err := json.Unmarshal(rawType, &env.Type); err != nil {
		return Envelope{}, fmt.Errorf("decode type: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	delete(fields, "type")

	if data, ok := fields["data"]; ok && !isNull(data) {
		env.Data = data
	}
	delete(fields, "data")

	if len(fields) > 0 {
		env.Fields = fields
	}
	return env, nil
}

// DecodePayload decodes env.Data into the typed payload for env.Type.
// Unknown kinds return the raw data unchanged. When Data is absent, flat
// top-level fields are decoded instead.
func DecodePayload(env Envelope) (any, error) {
	target := newPayload(env.Type)
	if target == nil {
		return env.Data, nil
	}

	src := env.Data
	if len(src) == 0 {
		if len(env.Fields) == 0 {
			return target, nil
		}
		flat, err := json.Marshal(env.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		src = flat
	}

	if err := json.Unmarshal(src, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return target, nil
}

// MarshalJSON restores the flat fields next to type and data.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	if len(e.Data) > 0 {
		out["data"] = e.Data
	}
	return json.Marshal(out)
}

func newPayload(k Kind) any {
	switch k {
	case KindAuthenticate:
		return &AuthenticateData{}
	case KindJoinRoom, KindLeaveRoom:
		return &RoomData{}
	case KindAuthenticated:
		return &Authenticated{}
	case KindJoinedRoom:
		return &JoinedRoom{}
	case KindAuthError, KindError:
		return &ServerError{}
	case KindParkingUpdate:
		return &ParkingUpdate{}
	case KindReservationCreated:
		return &ReservationCreated{}
	case KindChargingSessionUpdate:
		return &ChargingSessionUpdate{}
	case KindMarketplaceTransaction:
		return &MarketplaceTransaction{}
	case KindNotification:
		return &Notification{}
	case KindConnected:
		return &ConnectedData{}
	}
	return nil
}

func isNull(v RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
