package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestEncode_Authenticate(t *testing.T) {
	data, err := Encode(Message{Type: KindAuthenticate, Data: AuthenticateData{UserID: 42}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := `{"type":"authenticate","data":{"userId":42}}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestEncode_NoData(t *testing.T) {
	data, err := Encode(Message{Type: KindPing})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"type":"ping"}` {
		t.Errorf("Encode() = %s", data)
	}
}

func TestEncode_MissingType(t *testing.T) {
	_, err := Encode(Message{Data: RoomData{RoomID: "parking_1"}})
	if !errors.Is(err, ErrMissingType) {
		t.Errorf("expected ErrMissingType, got %v", err)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantType  Kind
		wantData  string
		wantField string
		wantErr   bool
	}{
		{
			name:     "with data",
			frame:    `{"type":"parking_update","data":{"parkingLotId":7,"availableSpots":3}}`,
			wantType: KindParkingUpdate,
			wantData: `{"parkingLotId":7,"availableSpots":3}`,
		},
		{
			name:     "no data",
			frame:    `{"type":"authenticated"}`,
			wantType: KindAuthenticated,
		},
		{
			name:     "null data",
			frame:    `{"type":"authenticated","data":null}`,
			wantType: KindAuthenticated,
		},
		{
			name:      "flat fields",
			frame:     `{"type":"joined_room","roomId":"parking_feed"}`,
			wantType:  KindJoinedRoom,
			wantField: "roomId",
		},
		{
			name:     "unknown type",
			frame:    `{"type":"future_event","data":[1,2]}`,
			wantType: Kind("future_event"),
			wantData: `[1,2]`,
		},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "empty", frame: `   `, wantErr: true},
		{name: "array", frame: `[1,2,3]`, wantErr: true},
		{name: "missing type", frame: `{"data":{}}`, wantErr: true},
		{name: "empty type", frame: `{"type":""}`, wantErr: true},
		{name: "numeric type", frame: `{"type":5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got envelope %+v", env)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEnvelope failed: %v", err)
			}
			if env.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", env.Type, tt.wantType)
			}
			if string(env.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", env.Data, tt.wantData)
			}
			if tt.wantField != "" {
				if _, ok := env.Fields[tt.wantField]; !ok {
					t.Errorf("Fields missing %q: %v", tt.wantField, env.Fields)
				}
			}
		})
	}
}

func TestDecodePayload_Typed(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"parking_update","data":{"parkingLotId":7,"availableSpots":3,"occupiedSpots":17}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}

	payload, err := DecodePayload(env)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}

	update, ok := payload.(*ParkingUpdate)
	if !ok {
		t.Fatalf("payload type = %T, want *ParkingUpdate", payload)
	}
	if update.ParkingLotID != 7 {
		t.Errorf("ParkingLotID = %d, want 7", update.ParkingLotID)
	}
	if update.AvailableSpots != 3 {
		t.Errorf("AvailableSpots = %d, want 3", update.AvailableSpots)
	}
	if update.OccupiedSpots != 17 {
		t.Errorf("OccupiedSpots = %d, want 17", update.OccupiedSpots)
	}
}

func TestDecodePayload_FlatFields(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"authenticated","userId":42,"timestamp":"2024-01-15T10:00:00.000Z"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}

	payload, err := DecodePayload(env)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}

	ack, ok := payload.(*Authenticated)
	if !ok {
		t.Fatalf("payload type = %T, want *Authenticated", payload)
	}
	if ack.UserID != 42 {
		t.Errorf("UserID = %d, want 42", ack.UserID)
	}
	if ack.Timestamp.IsZero() {
		t.Error("Timestamp should be parsed")
	}
}

func TestDecodePayload_EmptyKnownKind(t *testing.T) {
	payload, err := DecodePayload(Envelope{Type: KindAuthenticated})
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if _, ok := payload.(*Authenticated); !ok {
		t.Errorf("payload type = %T, want *Authenticated", payload)
	}
}

func TestDecodePayload_UnknownKindIsRaw(t *testing.T) {
	env := Envelope{Type: "spot_heatmap", Data: RawMessage(`{"cells":4}`)}

	payload, err := DecodePayload(env)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}

	raw, ok := payload.(RawMessage)
	if !ok {
		t.Fatalf("payload type = %T, want RawMessage", payload)
	}
	if string(raw) != `{"cells":4}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestDecodePayload_WrongShape(t *testing.T) {
	env := Envelope{Type: KindParkingUpdate, Data: RawMessage(`{"parkingLotId":"seven"}`)}

	if _, err := DecodePayload(env); err == nil {
		t.Error("expected error for mistyped field")
	}
}

func TestEnvelope_MarshalJSON(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"joined_room","roomId":"parking_feed","data":{"x":1}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}

	out, err := env.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}

	s := string(out)
	for _, want := range []string{`"type":"joined_room"`, `"roomId":"parking_feed"`, `"data":{"x":1}`} {
		if !strings.Contains(s, want) {
			t.Errorf("MarshalJSON() = %s, missing %s", s, want)
		}
	}
}

func TestKind_Local(t *testing.T) {
	if !KindDisconnected.Local() {
		t.Error("disconnected should be local")
	}
	if !KindReconnectFailed.Local() {
		t.Error("reconnect_failed should be local")
	}
	if KindParkingUpdate.Local() {
		t.Error("parking_update should not be local")
	}
}
