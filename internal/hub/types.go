package hub

import (
	"net/http"
	"time"

	"github.com/voltpark/realtime/internal/protocol"
)

// Config configures the Hub.
type Config struct {
	HeartbeatInterval time.Duration            // Ping period; a client missing one pong is dropped
	WriteTimeout      time.Duration            // Write deadline per frame
	SendBuffer        int                      // Initial outbox capacity per client
	MaxSendBuffer     int                      // Outbox limit before a client is dropped as slow
	MaxMessageSize    int64                    // Largest inbound frame accepted
	CheckOrigin       func(*http.Request) bool // nil accepts every origin
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBuffer:        64,
		MaxSendBuffer:     4096,
		MaxMessageSize:    64 * 1024,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.MaxSendBuffer == 0 {
		c.MaxSendBuffer = d.MaxSendBuffer
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	TotalConnections   int       `json:"totalConnections"`
	AuthenticatedUsers int       `json:"authenticatedUsers"`
	ActiveRooms        int       `json:"activeRooms"`
	PendingFrames      int       `json:"pendingFrames"`
	Timestamp          time.Time `json:"timestamp"`
}

// Reply texts sent in error frames.
const (
	msgWelcome        = "WebSocket connection established"
	msgInvalidFormat  = "Invalid message format"
	msgUserIDRequired = "User ID required"
	msgRoomIDRequired = "Room ID required"
)

// reply is a flat acknowledgement frame. Acks carry their fields next to
// type rather than under data.
type reply struct {
	Type      protocol.Kind   `json:"type"`
	Message   string          `json:"message,omitempty"`
	UserID    protocol.UserID `json:"userId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}
