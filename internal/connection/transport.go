package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open transport to the realtime hub.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the socket fails.
	ReadMessage() ([]byte, error)

	// WriteMessage writes a single text frame.
	WriteMessage(data []byte) error

	// Close sends a close frame with code and reason, then drops the socket.
	Close(code int, reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials gorilla websockets with keepalive.
type WebSocketDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer using the transport settings in cfg.
func NewWebSocketDialer(cfg Config, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial establishes the websocket connection.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	header := http.Header{}
	for k, v := range d.cfg.Header {
		header[k] = append([]string(nil), v...)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		conn:     conn,
		cfg:      d.cfg,
		logger:   d.logger,
		lastSeen: time.Now(),
		done:     make(chan struct{}),
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.heartbeatLoop()

	d.logger.Debug("websocket connected", "url", url)

	return c, nil
}

// wsConn implements Conn over gorilla/websocket.
type wsConn struct {
	conn   *websocket.Conn
	cfg    Config
	logger *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	stale    bool

	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.mu.Lock()
		stale := c.stale
		c.mu.Unlock()
		if stale {
			return nil, ErrStaleConnection
		}
		return nil, err
	}
	c.touch()
	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	err := ErrAlreadyClosed
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// heartbeatLoop pings the hub and drops the socket once it has been silent
// for longer than PingTimeout. The pending ReadMessage then fails with
// ErrStaleConnection.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			silent := time.Since(c.lastSeen)
			if silent > c.cfg.PingTimeout {
				c.stale = true
			}
			stale := c.stale
			c.mu.Unlock()

			if stale {
				c.logger.Warn("no pong received, connection stale",
					"silent_for", silent,
					"timeout", c.cfg.PingTimeout,
				)
				c.conn.Close()
				return
			}
		}
	}
}

// CloseStatus extracts the close code and reason carried by a read error.
// Errors that are not websocket close frames count as abnormal closure.
func CloseStatus(err error) (code int, reason string) {
	if err == nil {
		return CloseNormalClosure, ""
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormalClosure, err.Error()
}

// isCleanClose reports whether err is a close frame rather than a network failure.
func isCleanClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
