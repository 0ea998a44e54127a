// Package config loads the YAML configuration shared by the realtime
// server and the livefeed client.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Log      LogConfig    `yaml:"log"`
	Client   ClientConfig `yaml:"client"`
	Server   ServerConfig `yaml:"server"`
	Database DBConfig     `yaml:"database"`
	Relay    RelayConfig  `yaml:"relay"`
}

// LogConfig controls the slog handler built by the commands.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel maps Level to a slog.Level. Unknown values map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ClientConfig holds connection manager settings.
type ClientConfig struct {
	WSURL                string        `yaml:"ws_url"`
	UserID               int64         `yaml:"user_id"` // 0 connects without authenticating
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"` // Attempt N waits N * base
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	AutoRejoin           bool          `yaml:"auto_rejoin"`
	Rooms                []string      `yaml:"rooms"`
}

// ServerConfig holds hub and HTTP listener settings.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	SendBuffer        int           `yaml:"send_buffer"`
	MaxSendBuffer     int           `yaml:"max_send_buffer"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
	AllowedOrigins    []string      `yaml:"allowed_origins"` // empty allows all
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RelayConfig holds Postgres LISTEN/NOTIFY relay settings.
type RelayConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Channels           []string      `yaml:"channels"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}
