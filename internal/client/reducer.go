// Package client holds the headless chat client: a pure room-state reducer,
// a store around it, and the session that feeds it from the network.
package client

import (
	"slices"

	"github.com/dkeye/Parley/internal/domain"
)

// MaxMessages bounds the message log; the oldest entries are evicted first.
const MaxMessages = 100

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

type State struct {
	Connected    bool
	Status       Status
	CurrentUser  *domain.ChatUser
	RoomCode     string
	Messages     []domain.Message
	Participants []domain.ChatUser
	TypingUsers  []string
	MessageCount int
	RoomClosed   bool
}

func InitialState() State {
	return State{Status: StatusDisconnected}
}

// Action is a closed set of state transitions.
type Action interface{ action() }

type (
	AddMessage            struct{ Message domain.Message }
	UpdateParticipants    struct{ Participants []domain.ChatUser }
	SetCurrentUser        struct{ User *domain.ChatUser }
	SetRoomCode           struct{ Code string }
	SetConnected          struct{ Connected bool }
	SetStatus             struct{ Status Status }
	AddTypingUser         struct{ Username string }
	RemoveTypingUser      struct{ Username string }
	ClearMessages         struct{}
	IncrementMessageCount struct{}
	AddReaction           struct {
		MessageID string
		Reaction  domain.Reaction
	}
	CloseRoom struct{}
)

func (AddMessage) action()            {}
func (UpdateParticipants) action()    {}
func (SetCurrentUser) action()        {}
func (SetRoomCode) action()           {}
func (SetConnected) action()          {}
func (SetStatus) action()             {}
func (AddTypingUser) action()         {}
func (RemoveTypingUser) action()      {}
func (ClearMessages) action()         {}
func (IncrementMessageCount) action() {}
func (AddReaction) action()           {}
func (CloseRoom) action()             {}

// Reduce returns the next state. It never mutates s and never fails; unknown
// actions return s unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case AddMessage:
		if hasMessage(s.Messages, a.Message.ID) {
			return s
		}
		msgs := make([]domain.Message, 0, min(len(s.Messages)+1, MaxMessages))
		if over := len(s.Messages) + 1 - MaxMessages; over > 0 {
			msgs = append(msgs, s.Messages[over:]...)
		} else {
			msgs = append(msgs, s.Messages...)
		}
		s.Messages = append(msgs, a.Message)
	case UpdateParticipants:
		s.Participants = slices.Clone(a.Participants)
	case SetCurrentUser:
		if a.User == nil {
			s.CurrentUser = nil
		} else {
			u := *a.User
			s.CurrentUser = &u
		}
	case SetRoomCode:
		s.RoomCode = a.Code
	case SetConnected:
		s.Connected = a.Connected
	case SetStatus:
		s.Status = a.Status
	case AddTypingUser:
		if slices.Contains(s.TypingUsers, a.Username) {
			return s
		}
		s.TypingUsers = append(slices.Clone(s.TypingUsers), a.Username)
	case RemoveTypingUser:
		s.TypingUsers = slices.DeleteFunc(slices.Clone(s.TypingUsers), func(u string) bool { return u == a.Username })
	case ClearMessages:
		s.Messages = nil
		s.MessageCount = 0
	case IncrementMessageCount:
		s.MessageCount++
	case AddReaction:
		i := slices.IndexFunc(s.Messages, func(m domain.Message) bool { return m.ID == a.MessageID })
		if i < 0 {
			return s
		}
		msgs := slices.Clone(s.Messages)
		msgs[i].Reactions = append(slices.Clone(msgs[i].Reactions), a.Reaction)
		s.Messages = msgs
	case CloseRoom:
		s.RoomClosed = true
		s.Connected = false
		s.TypingUsers = nil
	}
	return s
}

func hasMessage(msgs []domain.Message, id string) bool {
	return slices.ContainsFunc(msgs, func(m domain.Message) bool { return m.ID == id })
}
