package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voltpark/realtime/internal/protocol"
)

// Hub accepts websocket clients and routes events to them.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[protocol.UserID]mapset.Set[*Client]
	rooms   map[string]mapset.Set[*Client]
	closed  bool

	wg sync.WaitGroup
}

// New creates a Hub. Serve it with ServeHTTP and start the heartbeat with Run.
func New(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
		},
		now:     time.Now,
		clients: make(map[*Client]struct{}),
		users:   make(map[protocol.UserID]mapset.Set[*Client]),
		rooms:   make(map[string]mapset.Set[*Client]),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(h, conn, uuid.NewString())
	if !h.register(c) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	now := h.now().UTC()
	c.reply(reply{Type: protocol.KindConnected, Message: msgWelcome, Timestamp: &now})

	c.readPump()
	h.unregister(c)
}

// Run pings every client each heartbeat interval until ctx is done, then
// closes all clients with a going-away frame and waits for their write
// pumps.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	h.logger.Info("hub started", "heartbeat_interval", h.cfg.HeartbeatInterval)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// heartbeat terminates clients that did not answer the previous ping and
// pings the rest.
func (h *Hub) heartbeat() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.alive.Swap(false) {
			c.logger.Info("terminating dead connection")
			c.terminate()
			continue
		}
		c.ping()
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()

	h.logger.Info("hub stopped", "clients_closed", len(clients))
}

// register adds c and reserves its write pump in wg. The reservation happens
// under mu so shutdown cannot be waiting on wg yet.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.wg.Add(1)
	h.clients[c] = struct{}{}
	c.logger.Info("websocket connection established", "remote", c.conn.RemoteAddr().String())
	return true
}

// unregister removes c from its user and every room, deleting sets that
// become empty.
func (h *Hub) unregister(c *Client) {
	c.terminate()

	userID, rooms := c.snapshot()

	h.mu.Lock()
	delete(h.clients, c)
	if userID != 0 {
		h.removeUserLocked(userID, c)
	}
	for _, roomID := range rooms {
		h.leaveLocked(c, roomID)
	}
	h.mu.Unlock()

	c.logger.Info("websocket connection closed", "user_id", userID)
}

// authenticate binds c to userID, moving it off any previous user.
func (h *Hub) authenticate(c *Client, userID protocol.UserID) {
	prev := c.setUser(userID)

	h.mu.Lock()
	if prev != 0 && prev != userID {
		h.removeUserLocked(prev, c)
	}
	set, ok := h.users[userID]
	if !ok {
		set = mapset.NewThreadUnsafeSet[*Client]()
		h.users[userID] = set
	}
	set.Add(c)
	total := set.Cardinality()
	h.mu.Unlock()

	c.logger.Info("user authenticated", "user_id", userID, "connections", total)
}

func (h *Hub) join(c *Client, roomID string) {
	c.addRoom(roomID)

	h.mu.Lock()
	set, ok := h.rooms[roomID]
	if !ok {
		set = mapset.NewThreadUnsafeSet[*Client]()
		h.rooms[roomID] = set
	}
	set.Add(c)
	size := set.Cardinality()
	h.mu.Unlock()

	c.logger.Debug("client joined room", "room_id", roomID, "room_size", size)
}

func (h *Hub) leave(c *Client, roomID string) {
	c.removeRoom(roomID)

	h.mu.Lock()
	h.leaveLocked(c, roomID)
	h.mu.Unlock()

	c.logger.Debug("client left room", "room_id", roomID)
}

func (h *Hub) leaveLocked(c *Client, roomID string) {
	set, ok := h.rooms[roomID]
	if !ok {
		return
	}
	set.Remove(c)
	if set.Cardinality() == 0 {
		delete(h.rooms, roomID)
		h.logger.Debug("room deleted (empty)", "room_id", roomID)
	}
}

func (h *Hub) removeUserLocked(userID protocol.UserID, c *Client) {
	set, ok := h.users[userID]
	if !ok {
		return
	}
	set.Remove(c)
	if set.Cardinality() == 0 {
		delete(h.users, userID)
	}
}

// Stats returns connection, user and room counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	pending := 0
	for c := range h.clients {
		pending += c.out.len()
	}

	return Stats{
		TotalConnections:   len(h.clients),
		AuthenticatedUsers: len(h.users),
		ActiveRooms:        len(h.rooms),
		PendingFrames:      pending,
		Timestamp:          h.now().UTC(),
	}
}

// RoomSize returns the number of clients in roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if set, ok := h.rooms[roomID]; ok {
		return set.Cardinality()
	}
	return 0
}

// UserConnections returns the number of clients authenticated as userID.
func (h *Hub) UserConnections(userID protocol.UserID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if set, ok := h.users[userID]; ok {
		return set.Cardinality()
	}
	return 0
}
