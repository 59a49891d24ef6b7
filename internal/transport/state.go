// Package transport provides the message channels annotation events travel
// over: a websocket peer connected to the relay and an in-memory pipe.
package transport

import "errors"

var (
	// ErrNotOpen is returned when sending on a channel that is not open.
	ErrNotOpen = errors.New("channel not open")
	// ErrBufferFull is returned when the outbound queue cannot take more messages.
	ErrBufferFull = errors.New("send buffer full")
)

// State is the lifecycle state of a channel.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageHandler receives each inbound message payload.
type MessageHandler func(data []byte)
