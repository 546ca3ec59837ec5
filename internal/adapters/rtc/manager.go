package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// PeerManager keeps one PeerLink per remote user.
type PeerManager struct {
	cfg webrtc.Configuration

	mu    sync.Mutex
	links map[domain.UserID]*PeerLink

	onSignal  func(domain.UserID, Signal)
	onMessage func(domain.UserID, []byte)
}

// NewPeerManager wires outgoing signals to onSignal and channel payloads to
// onMessage. Both callbacks run on pion goroutines.
func NewPeerManager(cfg webrtc.Configuration, onSignal func(domain.UserID, Signal), onMessage func(domain.UserID, []byte)) *PeerManager {
	return &PeerManager{
		cfg:       cfg,
		links:     make(map[domain.UserID]*PeerLink),
		onSignal:  onSignal,
		onMessage: onMessage,
	}
}

func (m *PeerManager) newLink(remote domain.UserID) (*PeerLink, error) {
	l, err := NewPeerLink(m.cfg, remote)
	if err != nil {
		return nil, err
	}
	l.OnSignal(m.onSignal)
	l.OnMessage(m.onMessage)
	l.OnClosed(m.forget(l))

	m.mu.Lock()
	old := m.links[remote]
	m.links[remote] = l
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return l, nil
}

func (m *PeerManager) forget(l *PeerLink) func(domain.UserID) {
	return func(remote domain.UserID) {
		m.mu.Lock()
		if m.links[remote] == l {
			delete(m.links, remote)
		}
		m.mu.Unlock()
	}
}

func (m *PeerManager) link(remote domain.UserID) (*PeerLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[remote]
	return l, ok
}

// Offer starts negotiation with remote and emits the offer through onSignal.
func (m *PeerManager) Offer(remote domain.UserID) error {
	l, err := m.newLink(remote)
	if err != nil {
		return err
	}
	offer, err := l.CreateOffer()
	if err != nil {
		m.Remove(remote)
		return err
	}
	l.announce(offer)
	return nil
}

// HandleSignal applies a signal received from remote.
func (m *PeerManager) HandleSignal(remote domain.UserID, raw json.RawMessage) error {
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("decode signal: %w", domain.ErrMalformedInput)
	}

	switch s.Type {
	case SignalOffer:
		l, err := m.newLink(remote)
		if err != nil {
			return err
		}
		answer, err := l.AcceptOffer(s)
		if err != nil {
			m.Remove(remote)
			return err
		}
		l.announce(answer)
	case SignalAnswer:
		l, ok := m.link(remote)
		if !ok {
			return fmt.Errorf("answer from %s: %w", remote, domain.ErrNotFound)
		}
		return l.ApplyAnswer(s)
	case SignalCandidate:
		l, ok := m.link(remote)
		if !ok {
			return fmt.Errorf("candidate from %s: %w", remote, domain.ErrNotFound)
		}
		return l.AddICECandidate(s)
	default:
		return fmt.Errorf("signal type %q: %w", s.Type, domain.ErrMalformedInput)
	}
	return nil
}

// Broadcast writes frame to every open channel and returns how many took it.
func (m *PeerManager) Broadcast(frame []byte) int {
	m.mu.Lock()
	links := make([]*PeerLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	sent := 0
	for _, l := range links {
		if err := l.Send(frame); err != nil {
			continue
		}
		sent++
	}
	log.Debug().Str("module", "rtc").Int("sent_to", sent).Msg("peer broadcast")
	return sent
}

func (m *PeerManager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.links {
		if l.IsOpen() {
			n++
		}
	}
	return n
}

func (m *PeerManager) Remove(remote domain.UserID) {
	m.mu.Lock()
	l, ok := m.links[remote]
	delete(m.links, remote)
	m.mu.Unlock()
	if ok {
		l.Close()
	}
}

func (m *PeerManager) Close() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[domain.UserID]*PeerLink)
	m.mu.Unlock()
	for _, l := range links {
		l.Close()
	}
}
