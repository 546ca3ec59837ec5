// Package protocol defines the realtime wire events as closed sets of types.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindJoinRoom         Kind = "join_room"
	KindLeaveRoom        Kind = "leave_room"
	KindTypingStart      Kind = "typing_start"
	KindTypingStop       Kind = "typing_stop"
	KindBroadcastMessage Kind = "broadcast_message"
	KindWebRTCSignal     Kind = "webrtc_signal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Inbound is an event sent by a client. The set of implementations is closed.
type Inbound interface {
	Kind() Kind
	inbound()
}

type JoinRoom struct {
	Username string `json:"username" validate:"required,max=36"`
	RoomID   string `json:"roomId" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

type LeaveRoom struct{}

type TypingStart struct{}

type TypingStop struct{}

// BroadcastMessage carries the chat message untouched; the server never reads it.
type BroadcastMessage struct {
	Message json.RawMessage `json:"message"`
}

// WebRTCSignal is the negotiation envelope. Signal stays opaque.
type WebRTCSignal struct {
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Signal       json.RawMessage `json:"signal"`
}

func (*JoinRoom) Kind() Kind         { return KindJoinRoom }
func (*LeaveRoom) Kind() Kind        { return KindLeaveRoom }
func (*TypingStart) Kind() Kind      { return KindTypingStart }
func (*TypingStop) Kind() Kind       { return KindTypingStop }
func (*BroadcastMessage) Kind() Kind { return KindBroadcastMessage }
func (*WebRTCSignal) Kind() Kind     { return KindWebRTCSignal }

func (*JoinRoom) inbound()         {}
func (*LeaveRoom) inbound()        {}
func (*TypingStart) inbound()      {}
func (*TypingStop) inbound()       {}
func (*BroadcastMessage) inbound() {}
func (*WebRTCSignal) inbound()     {}

// DecodeInbound parses one frame. Every failure wraps domain.ErrMalformedInput.
func DecodeInbound(frame []byte) (Inbound, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}

	var in Inbound
	switch env.Type {
	case KindJoinRoom:
		in = &JoinRoom{}
	case KindLeaveRoom:
		in = &LeaveRoom{}
	case KindTypingStart:
		in = &TypingStart{}
	case KindTypingStop:
		in = &TypingStop{}
	case KindBroadcastMessage:
		in = &BroadcastMessage{}
	case KindWebRTCSignal:
		in = &WebRTCSignal{}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrMalformedInput, env.Type)
	}

	if err := json.Unmarshal(frame, in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedInput, env.Type, err)
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedInput, env.Type, err)
	}
	switch ev := in.(type) {
	case *BroadcastMessage:
		if isAbsent(ev.Message) {
			return nil, fmt.Errorf("%w: %s: missing message", domain.ErrMalformedInput, env.Type)
		}
	case *WebRTCSignal:
		if isAbsent(ev.Signal) {
			return nil, fmt.Errorf("%w: %s: missing signal", domain.ErrMalformedInput, env.Type)
		}
	}
	return in, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
