package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
)

const (
	KindJoinedRoom         Kind = "joined_room"
	KindUserJoined         Kind = "user_joined"
	KindUserLeft           Kind = "user_left"
	KindParticipantsUpdate Kind = "participants_update"
	KindMessageReceived    Kind = "message_received"
	KindError              Kind = "error"
	KindRoomClosed         Kind = "room_closed"
	// typing_start, typing_stop and webrtc_signal share their inbound names.
)

// Outbound is an event sent by the server. The set of implementations is closed.
type Outbound interface {
	Kind() Kind
	outbound()
}

type JoinedRoom struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type UserJoined struct {
	Username string        `json:"username"`
	UserID   domain.UserID `json:"userId"`
	Role     domain.Role   `json:"role"`
}

type UserLeft struct {
	Username string        `json:"username"`
	UserID   domain.UserID `json:"userId"`
}

type ParticipantsUpdate struct {
	Participants []domain.ChatUser `json:"participants"`
}

// TypingNotice is typing_start when Started, typing_stop otherwise.
type TypingNotice struct {
	Started  bool          `json:"-"`
	Username string        `json:"username"`
	UserID   domain.UserID `json:"userId"`
}

type MessageReceived struct {
	Message json.RawMessage `json:"message"`
}

type SignalForward struct {
	Signal       json.RawMessage `json:"signal"`
	FromUserID   domain.UserID   `json:"fromUserId"`
	FromUsername string          `json:"fromUsername"`
}

type Error struct {
	Message string `json:"message"`
}

type RoomClosed struct {
	RoomID domain.RoomID `json:"roomId"`
}

func (*JoinedRoom) Kind() Kind         { return KindJoinedRoom }
func (*UserJoined) Kind() Kind         { return KindUserJoined }
func (*UserLeft) Kind() Kind           { return KindUserLeft }
func (*ParticipantsUpdate) Kind() Kind { return KindParticipantsUpdate }
func (*MessageReceived) Kind() Kind    { return KindMessageReceived }
func (*SignalForward) Kind() Kind      { return KindWebRTCSignal }
func (*Error) Kind() Kind              { return KindError }
func (*RoomClosed) Kind() Kind         { return KindRoomClosed }

func (t *TypingNotice) Kind() Kind {
	if t.Started {
		return KindTypingStart
	}
	return KindTypingStop
}

func (*JoinedRoom) outbound()         {}
func (*UserJoined) outbound()         {}
func (*UserLeft) outbound()           {}
func (*ParticipantsUpdate) outbound() {}
func (*TypingNotice) outbound()       {}
func (*MessageReceived) outbound()    {}
func (*SignalForward) outbound()      {}
func (*Error) outbound()              {}
func (*RoomClosed) outbound()         {}

// Encode renders ev as a JSON object whose "type" field is ev.Kind().
func Encode(ev Outbound) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return withType(ev.Kind(), body)
}

// DecodeOutbound is the client-side counterpart of Encode.
func DecodeOutbound(frame []byte) (Outbound, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}

	var ev Outbound
	switch env.Type {
	case KindJoinedRoom:
		ev = &JoinedRoom{}
	case KindUserJoined:
		ev = &UserJoined{}
	case KindUserLeft:
		ev = &UserLeft{}
	case KindParticipantsUpdate:
		ev = &ParticipantsUpdate{}
	case KindTypingStart:
		ev = &TypingNotice{Started: true}
	case KindTypingStop:
		ev = &TypingNotice{}
	case KindMessageReceived:
		ev = &MessageReceived{}
	case KindWebRTCSignal:
		ev = &SignalForward{}
	case KindError:
		ev = &Error{}
	case KindRoomClosed:
		ev = &RoomClosed{}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrMalformedInput, env.Type)
	}
	if err := json.Unmarshal(frame, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedInput, env.Type, err)
	}
	return ev, nil
}

// Outgoing client requests. The server decodes these with DecodeInbound.

func EncodeRequest(in Inbound) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", in.Kind(), err)
	}
	return withType(in.Kind(), body)
}

func withType(kind Kind, body []byte) ([]byte, error) {
	k, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(k)+9)
	out = append(out, `{"type":`...)
	out = append(out, k...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
