package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

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
)

func logger() *zerolog.Logger {
	l := log.With().Str("module", "transport").Logger()
	return &l
}

// RoomURL builds the relay websocket URL for room. base is the relay's
// http(s) or ws(s) address.
func RoomURL(base, room, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/rooms/" + room
	u.RawPath = "/ws/rooms/" + url.PathEscape(room)
	if name != "" {
		q := u.Query()
		q.Set("name", name)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Peer is a websocket connection to a relay room. Drawing payloads sent on
// a Peer are wrapped in draw envelopes; inbound draw payloads are handed to
// the message handler. Sends never block: a full queue fails with
// ErrBufferFull.
type Peer struct {
	url   string
	state atomic.Int32

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.RWMutex
	id       string
	room     string
	members  map[string]models.Member
	handler  MessageHandler
	onSignal func(models.SignalMessage)
}

// NewPeer creates a Peer for the relay room at rawURL. It starts in
// StateConnecting; call Connect to dial.
func NewPeer(rawURL string) *Peer {
	p := &Peer{
		url:     rawURL,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		members: make(map[string]models.Member),
	}
	p.state.Store(int32(StateConnecting))
	return p
}

// Connect dials the relay and starts the read and write pumps.
func (p *Peer) Connect(ctx context.Context) error {
	select {
	case <-p.done:
		return ErrNotOpen
	default:
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, p.url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		p.state.Store(int32(StateClosed))
		return fmt.Errorf("dial relay: %w", err)
	}

	p.conn = conn
	p.state.Store(int32(StateOpen))
	logger().Info().Str("url", p.url).Msg("connected to relay")

	go p.writePump()
	go p.readPump()
	return nil
}

// State returns the connection state.
func (p *Peer) State() State {
	return State(p.state.Load())
}

// ID returns the id the relay assigned to this peer, once known.
func (p *Peer) ID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// Room returns the room id confirmed by the relay.
func (p *Peer) Room() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.room
}

// Members returns the other participants in the room, sorted by id.
func (p *Peer) Members() []models.Member {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Member, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnMessage registers the handler for inbound draw payloads.
func (p *Peer) OnMessage(h MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// OnSignal registers a handler for every non-draw envelope.
func (p *Peer) OnSignal(fn func(models.SignalMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSignal = fn
}

// Send queues a drawing payload for the room.
func (p *Peer) Send(data []byte) error {
	if p.State() != StateOpen {
		return ErrNotOpen
	}
	msg, err := models.Encode(models.SignalMessage{Type: models.SignalTypeDraw, Payload: data})
	if err != nil {
		return fmt.Errorf("wrap draw payload: %w", err)
	}
	return p.enqueue(msg)
}

// Signal queues a signaling envelope such as an offer or candidate.
func (p *Peer) Signal(msg models.SignalMessage) error {
	if p.State() != StateOpen {
		return ErrNotOpen
	}
	data, err := models.Encode(msg)
	if err != nil {
		return err
	}
	return p.enqueue(data)
}

func (p *Peer) enqueue(data []byte) error {
	select {
	case <-p.done:
		return ErrNotOpen
	case p.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (p *Peer) Close() error {
	if p.conn == nil {
		p.shutdown(StateClosed)
		return nil
	}
	p.shutdown(StateClosing)
	return nil
}

// Done is closed once the connection has ended.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) shutdown(next State) {
	p.once.Do(func() {
		p.state.Store(int32(next))
		close(p.done)
	})
}

func (p *Peer) readPump() {
	defer func() {
		p.shutdown(StateClosing)
		p.conn.Close()
		p.state.Store(int32(StateClosed))
	}()

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger().Warn().Err(err).Msg("relay connection lost")
			}
			return
		}
		msg, err := models.Decode(data)
		if err != nil {
			logger().Warn().Err(err).Msg("discard relay message")
			continue
		}
		p.dispatch(msg)
	}
}

func (p *Peer) dispatch(msg models.SignalMessage) {
	p.mu.Lock()
	switch msg.Type {
	case models.SignalTypePeers:
		var members []models.Member
		if err := models.DecodePayload(msg, &members); err == nil {
			p.id = msg.To
			p.room = msg.RoomID
			for _, m := range members {
				if m.ID != p.id {
					p.members[m.ID] = m
				}
			}
		}
	case models.SignalTypeJoin:
		var m models.Member
		if err := models.DecodePayload(msg, &m); err == nil && m.ID != p.id {
			p.members[m.ID] = m
		}
	case models.SignalTypeLeave:
		delete(p.members, msg.From)
	case models.SignalTypeError:
		logger().Warn().Str("error", msg.Error).Msg("relay reported error")
	}
	handler, onSignal := p.handler, p.onSignal
	p.mu.Unlock()

	if msg.Type == models.SignalTypeDraw {
		if handler != nil {
			handler(msg.Payload)
		}
		return
	}
	if onSignal != nil {
		onSignal(msg)
	}
}

func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger().Warn().Err(err).Msg("write to relay failed")
				p.shutdown(StateClosing)
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.shutdown(StateClosing)
				return
			}
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
