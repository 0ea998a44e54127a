package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Close codes used by the manager.
const (
	CloseNormalClosure   = 1000
	CloseAbnormalClosure = 1006

	closeReasonClient = "Client disconnect"
)

// State is the lifecycle state of the managed connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAuthenticating
	StateAuthenticated
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// open reports whether frames can be written in state s.
func (s State) open() bool {
	return s == StateOpen || s == StateAuthenticating || s == StateAuthenticated
}

// Config configures the Manager and its websocket transport.
type Config struct {
	URL                  string        // Default URL when Connect is called with ""
	Header               http.Header   // Extra handshake headers
	MaxReconnectAttempts int           // Attempts before reconnect_failed
	ReconnectBaseDelay   time.Duration // Delay for attempt N is N * base
	AutoRejoin           bool          // Re-send join_room for tracked rooms after each open
	HandshakeTimeout     time.Duration // Websocket handshake deadline
	WriteTimeout         time.Duration // Write deadline for sends
	PingInterval         time.Duration // Keepalive ping period
	PingTimeout          time.Duration // Max silence before the socket is considered stale
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   2 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		PingInterval:         25 * time.Second,
		PingTimeout:          60 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = d.PingTimeout
	}
}

// BackoffDelay returns the delay before reconnect attempt n (1-based).
func BackoffDelay(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return base * time.Duration(n)
}

// Scheduler runs f after d. The default uses time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
