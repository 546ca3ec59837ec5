package client

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(i int) domain.Message {
	return domain.Message{
		ID:         fmt.Sprintf("m%d", i),
		Content:    fmt.Sprintf("message %d", i),
		SenderID:   "u1",
		SenderName: "alice",
		Timestamp:  int64(i),
		Type:       domain.KindUser,
	}
}

func TestReduce_MessageCap(t *testing.T) {
	s := InitialState()
	for i := 1; i <= 150; i++ {
		s = Reduce(s, AddMessage{Message: msg(i)})
	}

	require.Len(t, s.Messages, MaxMessages)
	for i, m := range s.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i+51), m.ID)
	}
}

func TestReduce_AddMessageDedup(t *testing.T) {
	s := Reduce(InitialState(), AddMessage{Message: msg(1)})
	next := Reduce(s, AddMessage{Message: msg(1)})
	assert.Len(t, next.Messages, 1)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := InitialState()
	for i := 1; i <= MaxMessages; i++ {
		s = Reduce(s, AddMessage{Message: msg(i)})
	}
	s = Reduce(s, AddTypingUser{Username: "bob"})
	snapshot := append([]domain.Message(nil), s.Messages...)

	_ = Reduce(s, AddMessage{Message: msg(101)})
	_ = Reduce(s, AddReaction{MessageID: "m5", Reaction: domain.Reaction{Emoji: "👍"}})
	_ = Reduce(s, RemoveTypingUser{Username: "bob"})

	assert.Equal(t, snapshot, s.Messages)
	assert.Empty(t, s.Messages[4].Reactions)
	assert.Equal(t, []string{"bob"}, s.TypingUsers)
}

func TestReduce_Typing(t *testing.T) {
	s := InitialState()
	s = Reduce(s, AddTypingUser{Username: "bob"})
	s = Reduce(s, AddTypingUser{Username: "bob"})
	assert.Equal(t, []string{"bob"}, s.TypingUsers)

	s = Reduce(s, RemoveTypingUser{Username: "carol"})
	assert.Equal(t, []string{"bob"}, s.TypingUsers)
	s = Reduce(s, RemoveTypingUser{Username: "bob"})
	assert.Empty(t, s.TypingUsers)
}

func TestReduce_Reactions(t *testing.T) {
	s := Reduce(InitialState(), AddMessage{Message: msg(1)})
	r := domain.Reaction{Emoji: "🎉", UserID: "u2", Username: "bob"}

	s = Reduce(s, AddReaction{MessageID: "m1", Reaction: r})
	s = Reduce(s, AddReaction{MessageID: "m1", Reaction: domain.Reaction{Emoji: "👍", UserID: "u3", Username: "carol"}})
	require.Len(t, s.Messages[0].Reactions, 2)
	assert.Equal(t, r, s.Messages[0].Reactions[0])

	same := Reduce(s, AddReaction{MessageID: "missing", Reaction: r})
	assert.Equal(t, s, same)
}

func TestReduce_Scalars(t *testing.T) {
	user := &domain.ChatUser{ID: "u1", Username: "alice", Role: domain.RoleAdmin}
	s := InitialState()
	s = Reduce(s, SetCurrentUser{User: user})
	s = Reduce(s, SetRoomCode{Code: "AB12CD34"})
	s = Reduce(s, SetConnected{Connected: true})
	s = Reduce(s, SetStatus{Status: StatusConnected})
	s = Reduce(s, UpdateParticipants{Participants: []domain.ChatUser{*user}})
	s = Reduce(s, IncrementMessageCount{})
	s = Reduce(s, IncrementMessageCount{})

	user.Username = "mutated"
	assert.Equal(t, "alice", s.CurrentUser.Username)
	assert.Equal(t, "AB12CD34", s.RoomCode)
	assert.True(t, s.Connected)
	assert.Equal(t, StatusConnected, s.Status)
	assert.Len(t, s.Participants, 1)
	assert.Equal(t, 2, s.MessageCount)

	s = Reduce(s, AddMessage{Message: msg(1)})
	s = Reduce(s, ClearMessages{})
	assert.Empty(t, s.Messages)
	assert.Zero(t, s.MessageCount)

	s = Reduce(s, AddTypingUser{Username: "bob"})
	s = Reduce(s, CloseRoom{})
	assert.True(t, s.RoomClosed)
	assert.False(t, s.Connected)
	assert.Empty(t, s.TypingUsers)

	assert.Equal(t, s, Reduce(s, nil))
}

func TestStore_AddMessage(t *testing.T) {
	st := NewStore()
	var seen []int
	st.Subscribe(func(s State) { seen = append(seen, s.MessageCount) })

	assert.True(t, st.AddMessage(msg(1)))
	assert.False(t, st.AddMessage(msg(1)), "the second path delivers a duplicate")
	assert.True(t, st.AddMessage(msg(2)))

	s := st.State()
	assert.Len(t, s.Messages, 2)
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestStore_Export(t *testing.T) {
	st := NewStore()
	st.AddMessage(msg(1))
	st.AddMessage(domain.Message{ID: "s1", Content: "welcome", Type: domain.KindSystem})

	var buf bytes.Buffer
	require.NoError(t, st.Export(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "alice: message 1"))
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 10*time.Second
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.n, base, max))
		})
	}
}
