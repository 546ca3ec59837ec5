package client

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Store serialises actions over one State and notifies subscribers after each.
type Store struct {
	mu    sync.Mutex
	state State
	subs  []func(State)
}

func NewStore() *Store {
	return &Store{state: InitialState()}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every new state. fn must not block.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) Dispatch(actions ...Action) State {
	s.mu.Lock()
	for _, a := range actions {
		s.state = Reduce(s.state, a)
	}
	next := s.state
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// AddMessage appends m and bumps the count when m was not already in the log.
// It reports whether the append happened.
func (s *Store) AddMessage(m domain.Message) bool {
	s.mu.Lock()
	if hasMessage(s.state.Messages, m.ID) {
		s.mu.Unlock()
		return false
	}
	s.state = Reduce(s.state, AddMessage{Message: m})
	s.state = Reduce(s.state, IncrementMessageCount{})
	next := s.state
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

// Export writes user messages as "[time] name: content" lines.
func (s *Store) Export(w io.Writer) error {
	for _, m := range s.State().Messages {
		if m.Type != domain.KindUser {
			continue
		}
		ts := time.UnixMilli(m.Timestamp).Format(time.DateTime)
		if _, err := fmt.Fprintf(w, "[%s] %s: %s\n", ts, m.SenderName, m.Content); err != nil {
			return err
		}
	}
	return nil
}
