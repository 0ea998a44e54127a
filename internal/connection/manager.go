package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voltpark/realtime/internal/eventbus"
	"github.com/voltpark/realtime/internal/protocol"
	"github.com/voltpark/realtime/internal/rooms"
)

// Manager owns the single realtime connection for one logged-in session.
//
// Create one at login and Stop it at logout. All transport failures are
// reported as events on Bus(); none of the public methods return them.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	bus       *eventbus.Bus
	rooms     *rooms.Registry
	dialer    Dialer
	scheduler Scheduler
	now       func() time.Time

	mu            sync.Mutex
	state         State
	sess          *session
	url           string
	userID        protocol.UserID
	authenticated bool
	stopped       bool

	// Reconnect state. attempts is reset only when a socket opens.
	attempts int
	timer    Timer
	timerSeq uint64

	wg sync.WaitGroup
}

// session is one dial and the socket it produced.
type session struct {
	conn   Conn
	cancel context.CancelFunc

	// intentional is set by Disconnect before the socket is closed so the
	// read loop does not schedule a reconnect.
	intentional atomic.Bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithBus publishes on b instead of a private bus.
func WithBus(b *eventbus.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithScheduler replaces the reconnect timer source.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithClock replaces the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager in StateDisconnected.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		scheduler: timeScheduler{},
		now:       time.Now,
		url:       cfg.URL,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = eventbus.New(logger)
	}
	if m.dialer == nil {
		m.dialer = NewWebSocketDialer(cfg, logger)
	}
	m.rooms = rooms.NewRegistry(m, logger)
	return m
}

// Bus returns the event bus inbound messages are published on.
func (m *Manager) Bus() *eventbus.Bus {
	return m.bus
}

// On registers l for kind. See eventbus.Bus.On.
func (m *Manager) On(kind protocol.Kind, l eventbus.Listener) (unsubscribe func()) {
	return m.bus.On(kind, l)
}

// OnFunc registers fn for kind. See eventbus.Bus.OnFunc.
func (m *Manager) OnFunc(kind protocol.Kind, fn func(eventbus.Event)) (unsubscribe func()) {
	return m.bus.OnFunc(kind, fn)
}

// Off removes l from kind.
func (m *Manager) Off(kind protocol.Kind, l eventbus.Listener) {
	m.bus.Off(kind, l)
}

// Connect opens the socket to url in the background and authenticates as
// userID once it is open. A zero userID skips the handshake and an empty url
// reuses the last one. Connect is a no-op while a socket is open or being
// dialed.
func (m *Manager) Connect(url string, userID protocol.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		m.logger.Warn("cannot connect - manager stopped")
		return
	}
	if m.sess != nil {
		m.logger.Debug("already connected", "state", m.state)
		return
	}

	if url != "" {
		m.url = url
	}
	m.userID = userID
	if m.url == "" {
		m.logger.Error("cannot connect - no url configured")
		return
	}

	m.startLocked()
}

// Authenticate sends the authenticate handshake for userID. It only works
// on an open socket; otherwise it logs and returns false. Nothing is queued
// or retried.
func (m *Manager) Authenticate(userID protocol.UserID) bool {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || !m.state.open() {
		m.mu.Unlock()
		m.logger.Warn("cannot authenticate - not connected")
		return false
	}
	m.userID = userID
	m.mu.Unlock()

	msg := protocol.Message{
		Type: protocol.KindAuthenticate,
		Data: protocol.AuthenticateData{UserID: userID},
	}
	if !m.write(sess, msg) {
		return false
	}

	m.mu.Lock()
	if m.sess == sess && m.state == StateOpen {
		m.setStateLocked(StateAuthenticating)
	}
	m.mu.Unlock()

	m.logger.Info("authenticating", "user_id", userID)
	return true
}

// Disconnect cancels any pending reconnect and closes the socket with a
// normal closure. The resulting close does not trigger a reconnect. Safe to
// call when already disconnected. The reconnect attempt counter is left as is.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelTimerLocked()
	sess := m.sess
	var conn Conn
	if sess != nil {
		sess.intentional.Store(true)
		conn = sess.conn
		m.setStateLocked(StateClosing)
	}
	m.sess = nil
	m.authenticated = false
	m.mu.Unlock()

	m.rooms.Reset()

	if sess == nil {
		return
	}

	sess.cancel()
	if conn != nil {
		if err := conn.Close(CloseNormalClosure, closeReasonClient); err != nil && !errors.Is(err, ErrAlreadyClosed) {
			m.logger.Debug("close failed", "error", err)
		}
	}

	m.mu.Lock()
	if m.sess == nil && m.state == StateClosing {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	m.logger.Info("disconnected by client")
}

// Stop disconnects, waits for the read loop to exit and rejects any later
// Connect. Use it at logout.
//
// Listeners run on the read loop, so a listener that calls Stop waits on
// itself until ctx is done. From a listener, call Disconnect instead, or run
// Stop on its own goroutine.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.Disconnect()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("stop timed out waiting for read loop")
		return ctx.Err()
	}
}

// Send serializes msg and writes it. It returns false, without panicking or
// queueing, when the socket is not open or the write fails.
func (m *Manager) Send(msg protocol.Message) bool {
	m.mu.Lock()
	sess := m.sess
	open := sess != nil && m.state.open()
	m.mu.Unlock()

	if !open {
		m.logger.Warn("cannot send message - not connected", "type", msg.Type)
		return false
	}
	return m.write(sess, msg)
}

// JoinRoom asks the server to add this connection to roomID.
func (m *Manager) JoinRoom(roomID string) bool {
	return m.rooms.Join(roomID)
}

// LeaveRoom asks the server to remove this connection from roomID.
func (m *Manager) LeaveRoom(roomID string) bool {
	return m.rooms.Leave(roomID)
}

// Rooms returns the rooms joined since the last Disconnect.
func (m *Manager) Rooms() []string {
	return m.rooms.Joined()
}

// IsConnected reports whether a socket is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil && m.state.open()
}

// IsAuthenticated reports whether the server acknowledged the handshake on
// the current socket.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnect attempts since the last open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// startLocked begins a dial. Must be called with mu held and no session.
func (m *Manager) startLocked() {
	m.cancelTimerLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{cancel: cancel}
	m.sess = sess
	m.setStateLocked(StateConnecting)

	url := m.url
	m.logger.Info("connecting", "url", url)

	m.wg.Add(1)
	go m.run(ctx, sess, url)
}

// run dials, completes the open transition and then reads until the socket
// closes. Every inbound frame is dispatched on this goroutine, so listeners
// see frames in arrival order.
func (m *Manager) run(ctx context.Context, sess *session, url string) {
	defer m.wg.Done()
	defer sess.cancel()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	conn, err := m.dialer.Dial(dialCtx, url)
	cancel()

	m.mu.Lock()
	if m.sess != sess {
		// Disconnect ran while we were dialing.
		m.mu.Unlock()
		if conn != nil {
			conn.Close(CloseNormalClosure, closeReasonClient)
		}
		return
	}

	if err != nil {
		m.sess = nil
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		m.logger.Warn("websocket dial failed", "url", url, "error", err)
		m.bus.Emit(protocol.KindError, err)
		m.bus.Emit(protocol.KindDisconnected, &protocol.DisconnectedData{
			Code:   CloseAbnormalClosure,
			Reason: err.Error(),
		})
		m.scheduleReconnect()
		return
	}

	sess.conn = conn
	m.attempts = 0
	m.setStateLocked(StateOpen)
	userID := m.userID
	m.mu.Unlock()

	m.logger.Info("websocket connected", "url", url)

	if userID != 0 {
		m.Authenticate(userID)
	}
	if m.cfg.AutoRejoin {
		m.rooms.Rejoin()
	}

	m.bus.Emit(protocol.KindConnected, &protocol.ConnectedData{Timestamp: m.now().UTC()})

	m.readLoop(sess)
}

// readLoop reads frames until the socket fails, then runs the close path.
func (m *Manager) readLoop(sess *session) {
	for {
		data, err := sess.conn.ReadMessage()
		if err != nil {
			m.handleClose(sess, err)
			return
		}
		m.dispatch(sess, data)
	}
}

// dispatch decodes one frame and publishes it: first to listeners of its
// type, then to KindMessage listeners with the full envelope. Malformed
// frames are logged and dropped; the socket stays open.
func (m *Manager) dispatch(sess *session, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(data))
		return
	}

	payload, err := protocol.DecodePayload(env)
	if err != nil {
		m.logger.Warn("payload did not match its type, forwarding raw",
			"type", env.Type,
			"error", err,
		)
		payload = env.Data
	}

	m.logger.Debug("message received", "type", env.Type)

	if env.Type == protocol.KindAuthenticated {
		m.mu.Lock()
		if m.sess == sess {
			m.authenticated = true
			m.setStateLocked(StateAuthenticated)
		}
		m.mu.Unlock()
		m.logger.Info("websocket authenticated")
	}

	m.bus.Emit(env.Type, payload)
	m.bus.Emit(protocol.KindMessage, &env)
}

// handleClose publishes disconnected and, unless Disconnect caused the
// close, starts the reconnect policy.
func (m *Manager) handleClose(sess *session, err error) {
	intentional := sess.intentional.Load()

	code, reason := CloseStatus(err)
	if intentional {
		code, reason = CloseNormalClosure, closeReasonClient
	}

	m.mu.Lock()
	current := m.sess == sess
	if current {
		m.sess = nil
		m.authenticated = false
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	sess.conn.Close(CloseNormalClosure, "")

	m.logger.Info("websocket disconnected", "code", code, "reason", reason)

	if !intentional && !isCleanClose(err) {
		m.bus.Emit(protocol.KindError, err)
	}
	m.bus.Emit(protocol.KindDisconnected, &protocol.DisconnectedData{Code: code, Reason: reason})

	if intentional || !current {
		return
	}
	m.scheduleReconnect()
}

// scheduleReconnect arms the next attempt, or publishes reconnect_failed
// once attempts reach the configured maximum.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.stopped || m.sess != nil || m.timer != nil {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Error("max reconnect attempts reached", "attempts", attempts)
		m.bus.Emit(protocol.KindReconnectFailed, &protocol.ReconnectFailedData{Attempts: attempts})
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := BackoffDelay(m.cfg.ReconnectBaseDelay, attempt)

	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.scheduler.AfterFunc(delay, func() { m.reconnect(seq) })
	m.mu.Unlock()

	m.logger.Info("reconnecting",
		"delay", delay,
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
	)
}

// reconnect runs when a scheduled attempt fires. Timers cancelled by
// Disconnect or superseded by a manual Connect are ignored.
func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.timerSeq || m.timer == nil {
		return
	}
	m.timer = nil

	if m.stopped || m.sess != nil {
		return
	}
	m.logger.Debug("attempting to reconnect", "attempt", m.attempts)
	m.startLocked()
}

// cancelTimerLocked stops any pending reconnect. Must be called with mu held.
func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state change", "from", m.state, "to", s)
	m.state = s
}

func (m *Manager) write(sess *session, msg protocol.Message) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error("error encoding message", "type", msg.Type, "error", err)
		return false
	}
	if err := sess.conn.WriteMessage(data); err != nil {
		m.logger.Warn("error sending message", "type", msg.Type, "error", err)
		return false
	}
	return true
}
