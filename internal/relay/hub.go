// Package relay implements the room relay that carries drawing events and
// call signaling between participants.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/kalam/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
	// maxMessage bounds one inbound frame; draw events are a few hundred bytes.
	maxMessage = 64 << 10
)

func logger() *zerolog.Logger {
	l := log.With().Str("module", "relay").Logger()
	return &l
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Room is the set of live connections sharing one annotation session.
type Room struct {
	ID    string
	peers map[string]*client
	mu    sync.RWMutex
}

type client struct {
	id   string
	name string
	room *Room
	conn *websocket.Conn
	send chan []byte
}

// Hub owns every room. Rooms are created on first join and dropped when
// their last member leaves.
type Hub struct {
	presence Presence

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewHub creates a Hub recording membership in presence.
func NewHub(presence Presence) *Hub {
	return &Hub{presence: presence, rooms: make(map[string]*Room)}
}

// Presence returns the hub's membership store.
func (h *Hub) Presence() Presence {
	return h.presence
}

// RoomCount returns the number of rooms with live connections.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// HandleWS upgrades a request on /ws/rooms/:room and joins the caller to
// the room.
func (h *Hub) HandleWS(c *gin.Context) {
	roomID := c.Param("room")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger().Warn().Err(err).Msg("failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxMessage)

	cl := &client{
		id:   uuid.New().String(),
		name: c.Query("name"),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.join(c.Request.Context(), roomID, cl)

	go cl.writePump()
	go h.readPump(cl)
}

func (h *Hub) join(ctx context.Context, roomID string, cl *client) {
	// h.mu is held across the insert so a concurrent leave cannot drop
	// the room between lookup and insert.
	h.mu.Lock()
	room, exists := h.rooms[roomID]
	if !exists {
		room = &Room{ID: roomID, peers: make(map[string]*client)}
		h.rooms[roomID] = room
		logger().Debug().Str("room", roomID).Msg("created room")
	}
	cl.room = room
	room.mu.Lock()
	room.peers[cl.id] = cl
	members := make([]models.Member, 0, len(room.peers))
	for _, p := range room.peers {
		members = append(members, models.Member{ID: p.id, Name: p.name})
	}
	room.mu.Unlock()
	h.mu.Unlock()
	sortMembers(members)

	self := models.Member{ID: cl.id, Name: cl.name}
	if err := h.presence.Add(ctx, roomID, self); err != nil {
		logger().Warn().Err(err).Str("room", roomID).Msg("presence add failed")
	}

	if msg, err := models.WithPayload(models.SignalMessage{
		Type:   models.SignalTypePeers,
		To:     cl.id,
		RoomID: roomID,
	}, members); err == nil {
		cl.sendMessage(msg)
	}
	if msg, err := models.WithPayload(models.SignalMessage{
		Type:   models.SignalTypeJoin,
		From:   cl.id,
		RoomID: roomID,
	}, self); err == nil {
		room.broadcast(msg, cl.id)
	}

	logger().Info().Str("peer", cl.id).Str("name", cl.name).Str("room", roomID).
		Int("members", len(members)).Msg("peer joined")
}

func (h *Hub) leave(cl *client) {
	room := cl.room
	h.mu.Lock()
	room.mu.Lock()
	delete(room.peers, cl.id)
	empty := len(room.peers) == 0
	room.mu.Unlock()
	if empty && h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
		logger().Debug().Str("room", room.ID).Msg("removed empty room")
	}
	h.mu.Unlock()

	if err := h.presence.Remove(context.Background(), room.ID, cl.id); err != nil {
		logger().Warn().Err(err).Str("room", room.ID).Msg("presence remove failed")
	}

	room.broadcast(models.SignalMessage{
		Type:   models.SignalTypeLeave,
		From:   cl.id,
		RoomID: room.ID,
	}, cl.id)

	logger().Info().Str("peer", cl.id).Str("room", room.ID).Msg("peer left")
}

func (r *Room) broadcast(msg models.SignalMessage, exclude string) {
	data, err := models.Encode(msg)
	if err != nil {
		logger().Warn().Err(err).Msg("failed to encode message")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, cl := range r.peers {
		if id != exclude {
			cl.queue(data)
		}
	}
}

func (r *Room) sendTo(msg models.SignalMessage, target string) {
	r.mu.RLock()
	cl, ok := r.peers[target]
	r.mu.RUnlock()
	if !ok {
		logger().Debug().Str("peer", target).Str("room", r.ID).Msg("target peer not found")
		return
	}
	cl.sendMessage(msg)
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.leave(cl)
		close(cl.send)
		cl.conn.Close()
	}()

	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger().Warn().Err(err).Str("peer", cl.id).Msg("websocket error")
			}
			return
		}

		msg, err := models.Decode(data)
		if err != nil {
			logger().Debug().Err(err).Str("peer", cl.id).Msg("discard unparsable message")
			continue
		}
		msg.From = cl.id
		msg.RoomID = cl.room.ID

		switch msg.Type {
		case models.SignalTypeDraw:
			cl.room.broadcast(msg, cl.id)
		case models.SignalTypeOffer, models.SignalTypeAnswer, models.SignalTypeCandidate:
			if msg.To != "" {
				cl.room.sendTo(msg, msg.To)
			} else {
				cl.room.broadcast(msg, cl.id)
			}
		default:
			cl.sendMessage(models.SignalMessage{
				Type:   models.SignalTypeError,
				To:     cl.id,
				RoomID: cl.room.ID,
				Error:  "unsupported message type " + string(msg.Type),
			})
		}
	}
}

// queue hands data to the write pump, dropping it if the peer is behind.
// Callers hold the room lock, so send is never closed underneath them.
func (c *client) queue(data []byte) {
	select {
	case c.send <- data:
	default:
		logger().Warn().Str("peer", c.id).Msg("send buffer full, dropping message")
	}
}

func (c *client) sendMessage(msg models.SignalMessage) {
	data, err := models.Encode(msg)
	if err != nil {
		logger().Warn().Err(err).Msg("failed to encode message")
		return
	}
	c.room.mu.RLock()
	defer c.room.mu.RUnlock()
	if _, live := c.room.peers[c.id]; live {
		c.queue(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger().Debug().Err(err).Str("peer", c.id).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
