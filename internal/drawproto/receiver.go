package drawproto

import (
	"sync"
	"sync/atomic"

	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

// Listener is notified of every decoded inbound event.
type Listener interface {
	HandleEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }

// Receiver decodes inbound messages and dispatches them to subscribers.
// Malformed messages are logged and discarded.
type Receiver struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64

	received  atomic.Int64
	malformed atomic.Int64
}

// NewReceiver creates a Receiver with no subscribers.
func NewReceiver() *Receiver {
	return &Receiver{listeners: make(map[uint64]Listener)}
}

// Subscribe registers l and returns a function that removes it.
func (r *Receiver) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners, id)
		})
	}
}

// HandleMessage decodes data and dispatches it. It matches
// transport.MessageHandler.
func (r *Receiver) HandleMessage(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		r.malformed.Add(1)
		logger().Warn().Err(err).Int("bytes", len(data)).Msg("discard malformed message")
		return
	}
	r.received.Add(1)

	r.mu.RLock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.RUnlock()

	for _, l := range listeners {
		l.HandleEvent(ev)
	}
}

// Stats returns the number of decoded and discarded messages.
func (r *Receiver) Stats() (received, malformed int64) {
	return r.received.Load(), r.malformed.Load()
}

// Replayer rasterizes remote events onto a layer. Points are denormalized
// against the layer's current size, not the sender's.
type Replayer struct {
	layer *ink.Layer
}

// NewReplayer creates a Replayer drawing onto layer.
func NewReplayer(layer *ink.Layer) *Replayer {
	return &Replayer{layer: layer}
}

// HandleEvent implements Listener.
func (r *Replayer) HandleEvent(ev Event) {
	var err error
	switch ev.Kind {
	case KindDraw:
		c, perr := ink.ParseHex(ev.Color)
		if perr != nil {
			return
		}
		err = r.layer.StrokeNormalized(ev.Points, c, ev.Width)
	case KindErase:
		err = r.layer.EraseNormalized(geom.Pt(ev.X, ev.Y), ink.EraserRadius(ev.Width))
	case KindClear:
		r.layer.Clear()
	case KindUp:
		// Each draw event carries its own points; nothing to close.
	}
	if err != nil {
		logger().Warn().Err(err).Str("kind", string(ev.Kind)).Msg("replay failed")
	}
}
