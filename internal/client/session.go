package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotAdmin  = errors.New("only admins can clear messages")
	ErrNotJoined = errors.New("not joined to a room")
	ErrGaveUp    = errors.New("reconnect attempts exhausted")
)

const (
	writeWait    = 5 * time.Second
	outboxSize   = 64
	noticeBuffer = 16
)

// Peers is the direct peer-to-peer path used next to the server relay.
type Peers interface {
	Offer(remote domain.UserID) error
	HandleSignal(remote domain.UserID, raw json.RawMessage) error
	Broadcast(frame []byte) int
	Remove(remote domain.UserID)
	Close()
}

type Option func(*Session)

// WithPeers replaces the pion-backed peer manager. nil disables the direct path.
func WithPeers(p Peers) Option {
	return func(s *Session) { s.peers = p }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// Session keeps one realtime connection alive for a single room and folds its
// events into a Store.
type Session struct {
	cfg     *config.ClientConfig
	role    domain.Role
	store   *Store
	dialer  *websocket.Dialer
	peers   Peers
	notices chan string

	mu          sync.Mutex
	out         chan []byte
	cancel      context.CancelFunc
	typing      bool
	typingTimer *time.Timer
	joined      bool
}

func NewSession(cfg *config.ClientConfig, store *Store, opts ...Option) (*Session, error) {
	role, err := domain.ParseRole(cfg.Role)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:     cfg,
		role:    role,
		store:   store,
		dialer:  websocket.DefaultDialer,
		notices: make(chan string, noticeBuffer),
	}
	s.peers = rtc.NewPeerManager(rtc.DefaultWebRTCConfig(cfg.STUNURLs...), s.sendSignal, s.onPeerMessage)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Store() *Store { return s.store }

// Notices carries transient, user-facing failures. Old notices are dropped
// when nobody reads them.
func (s *Session) Notices() <-chan string { return s.notices }

// Run connects and reconnects until ctx ends, Close is called, the server
// closes normally, or the retry budget runs out.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	attempt := 0
	for {
		s.store.Dispatch(SetStatus{Status: StatusConnecting})
		joined, err := s.connectOnce(ctx)
		if joined {
			attempt = 0
		}
		switch {
		case ctx.Err() != nil:
			s.offline(StatusDisconnected)
			return nil
		case websocket.IsCloseError(err, websocket.CloseNormalClosure), s.store.State().RoomClosed:
			log.Info().Str("module", "client").Msg("closed normally")
			s.offline(StatusDisconnected)
			return nil
		case attempt >= s.cfg.ReconnectAttempts:
			log.Warn().Err(err).Str("module", "client").Int("attempts", attempt).Msg("giving up")
			s.offline(StatusDisconnected)
			return fmt.Errorf("%w: %v", ErrGaveUp, err)
		}

		delay := Backoff(attempt, s.cfg.ReconnectBase, s.cfg.ReconnectMax)
		attempt++
		s.offline(StatusError)
		log.Warn().Err(err).Str("module", "client").Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
		select {
		case <-ctx.Done():
			s.offline(StatusDisconnected)
			return nil
		case <-time.After(delay):
		}
	}
}

// Close ends the session with a normal closure.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// connectOnce serves one connection and reports whether the join completed.
func (s *Session) connectOnce(ctx context.Context) (bool, error) {
	ws, _, err := s.dialer.DialContext(ctx, s.cfg.Server, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	out := make(chan []byte, outboxSize)
	s.mu.Lock()
	s.out = out
	s.joined = false
	s.mu.Unlock()
	s.store.Dispatch(SetStatus{Status: StatusConnected}, SetConnected{Connected: true}, SetRoomCode{Code: s.cfg.Room})
	log.Info().Str("module", "client").Str("server", s.cfg.Server).Str("room", s.cfg.Room).Msg("connected")

	if err := s.request(&protocol.JoinRoom{Username: s.cfg.Username, RoomID: s.cfg.Room, Role: string(s.role)}); err != nil {
		return false, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writePump(gctx, ws, out) })
	g.Go(func() error { return s.readPump(ws) })
	err = g.Wait()

	s.mu.Lock()
	joined := s.joined
	s.out = nil
	s.typing = false
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.mu.Unlock()
	if s.peers != nil {
		s.peers.Close()
	}
	return joined, err
}

func (s *Session) writePump(ctx context.Context, ws *websocket.Conn, out <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			_ = ws.SetReadDeadline(time.Now().Add(writeWait))
			return nil
		case data := <-out:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				_ = ws.Close()
				return err
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = ws.Close()
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (s *Session) readPump(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		s.handle(data)
	}
}

func (s *Session) offline(status Status) {
	s.store.Dispatch(SetConnected{Connected: false}, SetStatus{Status: status})
}

func (s *Session) notify(msg string) {
	select {
	case s.notices <- msg:
	default:
	}
}

// request queues an event on the current connection.
func (s *Session) request(in protocol.Inbound) error {
	frame, err := protocol.EncodeRequest(in)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(frame)
}

func (s *Session) enqueueLocked(frame []byte) error {
	if s.out == nil {
		return core.ErrConnClosed
	}
	select {
	case s.out <- frame:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (s *Session) self() (domain.ChatUser, bool) {
	u := s.store.State().CurrentUser
	if u == nil {
		return domain.ChatUser{}, false
	}
	return *u, true
}

func (s *Session) systemLine(content string) {
	s.store.AddMessage(domain.Message{
		ID:         "system-" + uuid.NewString(),
		Content:    content,
		SenderID:   "system",
		SenderName: "System",
		Timestamp:  time.Now().UnixMilli(),
		Type:       domain.KindSystem,
	})
}

func (s *Session) handle(frame []byte) {
	ev, err := protocol.DecodeOutbound(frame)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad event")
		return
	}
	me, _ := s.self()

	switch ev := ev.(type) {
	case *protocol.JoinedRoom:
		s.mu.Lock()
		s.joined = true
		s.mu.Unlock()
		s.store.Dispatch(SetCurrentUser{User: &domain.ChatUser{
			ID:       ev.UserID,
			Username: ev.Username,
			Role:     s.role,
			IsOnline: true,
		}})
		s.systemLine("Welcome to the chat!")
	case *protocol.UserJoined:
		s.systemLine(ev.Username + " joined the conversation")
		if s.peers != nil && ev.UserID != me.ID {
			if err := s.peers.Offer(ev.UserID); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("user", string(ev.UserID)).Msg("peer offer")
			}
		}
	case *protocol.UserLeft:
		s.systemLine(ev.Username + " left the conversation")
		s.store.Dispatch(RemoveTypingUser{Username: ev.Username})
		if s.peers != nil {
			s.peers.Remove(ev.UserID)
		}
	case *protocol.ParticipantsUpdate:
		s.store.Dispatch(UpdateParticipants{Participants: ev.Participants})
	case *protocol.TypingNotice:
		switch {
		case !ev.Started:
			s.store.Dispatch(RemoveTypingUser{Username: ev.Username})
		case ev.Username != s.cfg.Username:
			s.store.Dispatch(AddTypingUser{Username: ev.Username})
		}
	case *protocol.MessageReceived:
		var m domain.Message
		if err := json.Unmarshal(ev.Message, &m); err != nil || m.ID == "" {
			log.Warn().Str("module", "client").Msg("message without id")
			return
		}
		if m.SenderID != me.ID {
			s.store.AddMessage(m)
		}
	case *protocol.SignalForward:
		if s.peers == nil {
			return
		}
		if err := s.peers.HandleSignal(ev.FromUserID, ev.Signal); err != nil {
			log.Debug().Err(err).Str("module", "client").Str("user", string(ev.FromUserID)).Msg("peer signal")
		}
	case *protocol.Error:
		log.Warn().Str("module", "client").Str("error", ev.Message).Msg("server error")
		s.notify(ev.Message)
	case *protocol.RoomClosed:
		s.store.Dispatch(CloseRoom{})
		s.notify("the room was closed")
	}
}

func (s *Session) sendSignal(to domain.UserID, sig rtc.Signal) {
	raw, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := s.request(&protocol.WebRTCSignal{TargetUserID: string(to), Signal: raw}); err != nil {
		log.Debug().Err(err).Str("module", "client").Str("user", string(to)).Msg("signal not sent")
	}
}

func (s *Session) onPeerMessage(from domain.UserID, data []byte) {
	f, err := protocol.DecodePeerFrame(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("user", string(from)).Msg("bad peer frame")
		return
	}
	switch f.Type {
	case protocol.KindMessageReceived:
		s.store.AddMessage(*f.Message)
	case protocol.KindReaction:
		s.store.Dispatch(AddReaction{
			MessageID: f.MessageID,
			Reaction:  domain.Reaction{Emoji: f.Emoji, UserID: f.UserID, Username: f.Username},
		})
	}
}

// Send appends a text message locally and delivers it on both paths.
func (s *Session) Send(content string) (domain.Message, error) {
	return s.send(domain.Message{Content: content, Type: domain.KindUser})
}

// SendImage shares an inline image (usually a data URL).
func (s *Session) SendImage(imageURL, caption string) (domain.Message, error) {
	return s.send(domain.Message{Content: caption, Type: domain.KindImage, ImageURL: imageURL})
}

func (s *Session) send(m domain.Message) (domain.Message, error) {
	me, ok := s.self()
	if !ok {
		return domain.Message{}, ErrNotJoined
	}
	m.ID = uuid.NewString()
	m.SenderID = me.ID
	m.SenderName = me.Username
	m.Timestamp = time.Now().UnixMilli()
	s.store.AddMessage(m)

	if s.peers != nil {
		if frame, err := json.Marshal(protocol.MessageFrame(m)); err == nil {
			s.peers.Broadcast(frame)
		}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return m, err
	}
	if err := s.request(&protocol.BroadcastMessage{Message: raw}); err != nil {
		s.notify("could not send the message")
		return m, fmt.Errorf("send message: %w", err)
	}
	return m, nil
}

// React applies a reaction locally and shares it with connected peers.
func (s *Session) React(messageID, emoji string) error {
	me, ok := s.self()
	if !ok {
		return ErrNotJoined
	}
	r := domain.Reaction{Emoji: emoji, UserID: me.ID, Username: me.Username}
	s.store.Dispatch(AddReaction{MessageID: messageID, Reaction: r})
	if s.peers != nil {
		if frame, err := json.Marshal(protocol.ReactionFrame(messageID, r)); err == nil {
			s.peers.Broadcast(frame)
		}
	}
	return nil
}

// Typing reports local input. Non-empty text announces typing and re-arms the
// idle timer; empty text stops at once.
func (s *Session) Typing(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		s.stopTypingLocked()
		return
	}
	if !s.typing {
		if frame, err := protocol.EncodeRequest(&protocol.TypingStart{}); err == nil && s.enqueueLocked(frame) == nil {
			s.typing = true
		}
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.cfg.TypingIdle, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopTypingLocked()
	})
}

func (s *Session) stopTypingLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	if !s.typing {
		return
	}
	s.typing = false
	if frame, err := protocol.EncodeRequest(&protocol.TypingStop{}); err == nil {
		_ = s.enqueueLocked(frame)
	}
}

// ClearMessages wipes the local log. Only admins may do it.
func (s *Session) ClearMessages() error {
	if s.role != domain.RoleAdmin {
		return ErrNotAdmin
	}
	s.store.Dispatch(ClearMessages{})
	return nil
}

// Leave leaves the room but keeps the connection.
func (s *Session) Leave() error {
	return s.request(&protocol.LeaveRoom{})
}
