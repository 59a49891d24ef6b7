package transport

import (
	"sync"
	"sync/atomic"
)

// Pipe is one end of an in-memory channel pair. Messages sent on one end
// are delivered synchronously to the other end's handler. Both ends share
// a single state, which tests drive with SetState.
type Pipe struct {
	shared *pipeState
	peer   *Pipe

	mu      sync.RWMutex
	handler MessageHandler

	bytesSent atomic.Int64
	msgsSent  atomic.Int64
}

type pipeState struct {
	state atomic.Int32
}

// NewPipe returns two connected ends in the open state.
func NewPipe() (*Pipe, *Pipe) {
	shared := &pipeState{}
	shared.state.Store(int32(StateOpen))

	a := &Pipe{shared: shared}
	b := &Pipe{shared: shared}
	a.peer, b.peer = b, a
	return a, b
}

// State returns the shared state of the pipe.
func (p *Pipe) State() State {
	return State(p.shared.state.Load())
}

// SetState changes the state seen by both ends.
func (p *Pipe) SetState(s State) {
	p.shared.state.Store(int32(s))
}

// OnMessage registers the handler for messages arriving at this end.
func (p *Pipe) OnMessage(h MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Send delivers data to the other end.
func (p *Pipe) Send(data []byte) error {
	if p.State() != StateOpen {
		return ErrNotOpen
	}

	p.bytesSent.Add(int64(len(data)))
	p.msgsSent.Add(1)

	p.peer.mu.RLock()
	h := p.peer.handler
	p.peer.mu.RUnlock()

	if h != nil {
		h(append([]byte(nil), data...))
	}
	return nil
}

// Close moves the pipe to the closed state.
func (p *Pipe) Close() error {
	p.SetState(StateClosed)
	return nil
}

// Sent returns the number of messages and bytes sent from this end.
func (p *Pipe) Sent() (messages, bytes int64) {
	return p.msgsSent.Load(), p.bytesSent.Load()
}
