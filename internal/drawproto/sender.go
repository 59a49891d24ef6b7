package drawproto

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/kalam/internal/transport"
)

// logger returns the package sub-logger, built on the current global logger.
func logger() *zerolog.Logger {
	l := log.With().Str("module", "drawproto").Logger()
	return &l
}

// Channel is the outbound side of a transport.
type Channel interface {
	State() transport.State
	Send(data []byte) error
}

// Sender encodes events and writes them to a Channel. Events are dropped
// without error whenever the channel is not open; nothing is queued or
// retried.
type Sender struct {
	mu sync.RWMutex
	ch Channel

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewSender creates a Sender writing to ch. ch may be nil until a
// connection exists.
func NewSender(ch Channel) *Sender {
	return &Sender{ch: ch}
}

// SetChannel swaps the outbound channel.
func (s *Sender) SetChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
}

// Emit sends ev if the channel is open.
func (s *Sender) Emit(ev Event) {
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()

	if ch == nil || ch.State() != transport.StateOpen {
		s.dropped.Add(1)
		return
	}

	data, err := Encode(ev)
	if err != nil {
		logger().Debug().Err(err).Msg("drop unencodable event")
		s.dropped.Add(1)
		return
	}

	if err := ch.Send(data); err != nil {
		logger().Debug().Err(err).Str("kind", string(ev.Kind)).Msg("send failed")
		s.dropped.Add(1)
		return
	}
	s.sent.Add(1)
}

// Stats returns the number of events sent and dropped so far.
func (s *Sender) Stats() (sent, dropped int64) {
	return s.sent.Load(), s.dropped.Load()
}
