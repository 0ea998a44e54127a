package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/voltpark/realtime/internal/protocol"
)

// writeBatch bounds how many queued frames the write pump takes at once.
const writeBatch = 64

// Client is one websocket connection on the hub.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	out    *outbox
	logger *slog.Logger

	alive atomic.Bool

	mu     sync.Mutex
	userID protocol.UserID
	rooms  mapset.Set[string]

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	c := &Client{
		id:     id,
		hub:    h,
		conn:   conn,
		out:    newOutbox(h.cfg.SendBuffer, h.cfg.MaxSendBuffer),
		logger: h.logger.With("client_id", id),
		rooms:  mapset.NewThreadUnsafeSet[string](),
	}
	c.alive.Store(true)
	return c
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the authenticated user, or zero.
func (c *Client) UserID() protocol.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// readPump handles inbound frames until the socket fails.
func (c *Client) readPump() {
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.handle(data)
	}
}

// writePump writes queued frames until the outbox is closed and drained.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		frame, ok := c.out.pop()
		if !ok {
			return
		}
		if !c.write(frame) {
			c.terminate()
			return
		}
		for _, frame := range c.out.drain(writeBatch) {
			if !c.write(frame) {
				c.terminate()
				return
			}
		}
	}
}

func (c *Client) write(frame []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Debug("write failed", "error", err)
		return false
	}
	return true
}

func (c *Client) handle(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.logger.Warn("websocket message parse error", "error", err)
		c.replyError(protocol.KindError, msgInvalidFormat)
		return
	}

	switch env.Type {
	case protocol.KindAuthenticate:
		c.handleAuthenticate(env)
	case protocol.KindJoinRoom:
		c.handleJoin(env)
	case protocol.KindLeaveRoom:
		if room, ok := c.roomID(env); ok && room != "" {
			c.hub.leave(c, room)
		}
	case protocol.KindPing:
		now := c.hub.now().UTC()
		c.reply(reply{Type: protocol.KindPong, Timestamp: &now})
	default:
		c.logger.Warn("unknown message type", "type", env.Type)
		c.replyError(protocol.KindError, fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}

func (c *Client) handleAuthenticate(env protocol.Envelope) {
	payload, err := protocol.DecodePayload(env)
	if err != nil {
		c.replyError(protocol.KindError, msgInvalidFormat)
		return
	}
	auth := payload.(*protocol.AuthenticateData)
	if auth.UserID == 0 {
		c.replyError(protocol.KindAuthError, msgUserIDRequired)
		return
	}

	c.hub.authenticate(c, auth.UserID)

	now := c.hub.now().UTC()
	c.reply(reply{Type: protocol.KindAuthenticated, UserID: auth.UserID, Timestamp: &now})
}

func (c *Client) handleJoin(env protocol.Envelope) {
	room, ok := c.roomID(env)
	if !ok {
		return
	}
	if room == "" {
		c.replyError(protocol.KindError, msgRoomIDRequired)
		return
	}

	c.hub.join(c, room)

	now := c.hub.now().UTC()
	c.reply(reply{Type: protocol.KindJoinedRoom, RoomID: room, Timestamp: &now})
}

// roomID decodes a join_room or leave_room payload, replying with an error
// frame when it is malformed.
func (c *Client) roomID(env protocol.Envelope) (string, bool) {
	payload, err := protocol.DecodePayload(env)
	if err != nil {
		c.replyError(protocol.KindError, msgInvalidFormat)
		return "", false
	}
	return payload.(*protocol.RoomData).RoomID, true
}

func (c *Client) reply(r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Error("error encoding reply", "type", r.Type, "error", err)
		return
	}
	c.send(data)
}

func (c *Client) replyError(kind protocol.Kind, message string) {
	c.reply(reply{Type: kind, Message: message})
}

// send queues an encoded frame. A client whose outbox is full is dropped.
func (c *Client) send(frame []byte) bool {
	if c.out.push(frame) {
		return true
	}
	if c.out.len() >= c.hub.cfg.MaxSendBuffer {
		c.logger.Warn("dropping slow client", "pending", c.out.len())
		c.terminate()
	}
	return false
}

func (c *Client) ping() {
	err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.cfg.WriteTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("ping failed", "error", err)
	}
}

// closeWith sends a close frame and stops accepting frames. The write pump
// closes the socket once it sees the closed outbox.
func (c *Client) closeWith(code int, reason string) {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.out.close()
}

// terminate drops the socket without a close handshake.
func (c *Client) terminate() {
	c.closeOnce.Do(func() {
		c.out.close()
		c.conn.Close()
	})
}

func (c *Client) setUser(userID protocol.UserID) (prev protocol.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev = c.userID
	c.userID = userID
	return prev
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms.Add(roomID)
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	c.rooms.Remove(roomID)
	c.mu.Unlock()
}

func (c *Client) snapshot() (protocol.UserID, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.rooms.ToSlice()
}
