package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel             = "info"
	DefaultWSURL                = "ws://localhost:3000/ws"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 2 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultClientWriteTimeout   = 5 * time.Second
	DefaultPingInterval         = 25 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultListenAddr           = ":3000"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultServerWriteTimeout   = 10 * time.Second
	DefaultSendBuffer           = 64
	DefaultMaxSendBuffer        = 4096
	DefaultMaxMessageSize       = 64 * 1024
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultRelayBaseDelay       = 2 * time.Second
	DefaultRelayMaxDelay        = 30 * time.Second
)

// DefaultRelayChannels are the NOTIFY channels the relay listens on when
// none are configured.
var DefaultRelayChannels = []string{
	"parking_update",
	"reservation_created",
	"charging_session_update",
	"marketplace_transaction",
	"notification",
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Client defaults
	if c.Client.WSURL == "" {
		c.Client.WSURL = DefaultWSURL
	}
	if c.Client.MaxReconnectAttempts == 0 {
		c.Client.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Client.ReconnectBaseDelay == 0 {
		c.Client.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Client.HandshakeTimeout == 0 {
		c.Client.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Client.WriteTimeout == 0 {
		c.Client.WriteTimeout = DefaultClientWriteTimeout
	}
	if c.Client.PingInterval == 0 {
		c.Client.PingInterval = DefaultPingInterval
	}
	if c.Client.PingTimeout == 0 {
		c.Client.PingTimeout = DefaultPingTimeout
	}

	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Server.SendBuffer == 0 {
		c.Server.SendBuffer = DefaultSendBuffer
	}
	if c.Server.MaxSendBuffer == 0 {
		c.Server.MaxSendBuffer = DefaultMaxSendBuffer
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyDBDefaults(&c.Database)

	// Relay defaults
	if len(c.Relay.Channels) == 0 {
		c.Relay.Channels = append([]string(nil), DefaultRelayChannels...)
	}
	if c.Relay.ReconnectBaseDelay == 0 {
		c.Relay.ReconnectBaseDelay = DefaultRelayBaseDelay
	}
	if c.Relay.ReconnectMaxDelay == 0 {
		c.Relay.ReconnectMaxDelay = DefaultRelayMaxDelay
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
