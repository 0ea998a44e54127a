package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
// Database settings are only checked when the relay is enabled.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if err := c.Client.validate(); err != nil {
		return err
	}

	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if c.Server.SendBuffer < 1 {
		return errors.New("server.send_buffer must be >= 1")
	}
	if c.Server.MaxSendBuffer < c.Server.SendBuffer {
		return fmt.Errorf("server.max_send_buffer (%d) cannot be less than send_buffer (%d)", c.Server.MaxSendBuffer, c.Server.SendBuffer)
	}

	if c.Relay.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if len(c.Relay.Channels) == 0 {
			return errors.New("relay.channels must not be empty when relay is enabled")
		}
	}

	return nil
}

func (cc *ClientConfig) validate() error {
	u, err := url.Parse(cc.WSURL)
	if err != nil {
		return fmt.Errorf("client.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client.ws_url must use ws or wss, got %q", cc.WSURL)
	}
	if cc.UserID < 0 {
		return errors.New("client.user_id must be >= 0")
	}
	if cc.MaxReconnectAttempts < 1 {
		return errors.New("client.max_reconnect_attempts must be >= 1")
	}
	if cc.ReconnectBaseDelay <= 0 {
		return errors.New("client.reconnect_base_delay must be > 0")
	}
	if cc.PingTimeout <= cc.PingInterval {
		return fmt.Errorf("client.ping_timeout (%v) must exceed ping_interval (%v)", cc.PingTimeout, cc.PingInterval)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
