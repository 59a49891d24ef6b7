// Package models holds the relay wire envelope shared by the relay and its
// clients.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// SignalType is the kind of relay message.
type SignalType string

const (
	SignalTypeJoin      SignalType = "join"
	SignalTypeLeave     SignalType = "leave"
	SignalTypePeers     SignalType = "peers"
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "candidate"
	SignalTypeDraw      SignalType = "draw"
	SignalTypeError     SignalType = "error"
)

// SignalMessage is the envelope every relay message travels in. For draw
// messages Payload is an encoded drawing event, passed through untouched.
type SignalMessage struct {
	Type    SignalType      `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Member is a participant in a room.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RoomInfo describes a room's current members.
type RoomInfo struct {
	ID      string   `json:"id"`
	Members []Member `json:"members"`
}

// Encode marshals msg.
func Encode(msg SignalMessage) ([]byte, error) {
	return sonic.Marshal(msg)
}

// Decode unmarshals a relay message. A message without a type is rejected.
func Decode(data []byte) (SignalMessage, error) {
	var msg SignalMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return SignalMessage{}, fmt.Errorf("decode signal message: %w", err)
	}
	if msg.Type == "" {
		return SignalMessage{}, fmt.Errorf("decode signal message: missing type")
	}
	return msg, nil
}

// WithPayload returns msg carrying v marshaled as its payload.
func WithPayload(msg SignalMessage, v any) (SignalMessage, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return msg, fmt.Errorf("encode payload: %w", err)
	}
	msg.Payload = data
	return msg, nil
}

// DecodePayload unmarshals msg's payload into v.
func DecodePayload(msg SignalMessage, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", msg.Type)
	}
	if err := sonic.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return nil
}
