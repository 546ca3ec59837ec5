package orch

import (
	"slices"
	"sync"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client-facing error texts. They are deliberately generic.
const (
	msgMalformed     = "malformed request"
	msgRoomNotFound  = "room not found"
	msgAlreadyJoined = "already joined"
)

type ConnState int

const (
	Unjoined ConnState = iota
	Joined
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joined:
		return "joined"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type attachment struct {
	conn  core.SignalConnection
	state ConnState
}

// Orchestrator is the signaling router. A single mutex serialises every handler,
// so each event sees and leaves the registries consistent. Handlers only enqueue
// frames and never wait on the network while holding it.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomDirectory
	Users    *app.Users
	Policy   app.Policy
	Codes    app.RoomCodeFunc

	mu     sync.Mutex
	conns  map[core.ConnID]*attachment
	owners map[domain.RoomID]string
}

// Attach starts tracking a freshly opened transport in the Unjoined state.
func (o *Orchestrator) Attach(conn core.SignalConnection) core.ConnID {
	cid := core.ConnID(uuid.NewString())
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conns == nil {
		o.conns = make(map[core.ConnID]*attachment)
	}
	o.conns[cid] = &attachment{conn: conn, state: Unjoined}
	log.Debug().Str("module", "orch").Str("cid", string(cid)).Msg("connection attached")
	return cid
}

// State reports the lifecycle state of cid; unknown ids read as Closed.
func (o *Orchestrator) State(cid core.ConnID) ConnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.conns[cid]; ok {
		return a.state
	}
	return Closed
}

// Dispatch handles one inbound frame from cid. Failures are answered on cid only.
func (o *Orchestrator) Dispatch(cid core.ConnID, frame core.Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.conns[cid]
	if !ok || a.state == Closed {
		return
	}

	ev, err := protocol.DecodeInbound(frame)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("malformed event")
		o.send(cid, a.conn, &protocol.Error{Message: msgMalformed})
		return
	}

	if join, ok := ev.(*protocol.JoinRoom); ok {
		if a.state == Joined {
			log.Warn().Err(domain.ErrDuplicateJoin).Str("module", "orch").Str("cid", string(cid)).Msg("join rejected")
			o.send(cid, a.conn, &protocol.Error{Message: msgAlreadyJoined})
			return
		}
		o.join(cid, a, join)
		return
	}

	if a.state != Joined {
		log.Debug().Str("module", "orch").Str("cid", string(cid)).Str("type", string(ev.Kind())).Msg("ignored event before join")
		return
	}
	from, ok := o.Registry.Get(cid)
	if !ok {
		return
	}

	switch ev := ev.(type) {
	case *protocol.LeaveRoom:
		o.leave(cid, a)
	case *protocol.TypingStart:
		o.broadcastToRoom(from.RoomID, &protocol.TypingNotice{Started: true, Username: from.Username, UserID: from.UserID}, cid)
	case *protocol.TypingStop:
		o.broadcastToRoom(from.RoomID, &protocol.TypingNotice{Username: from.Username, UserID: from.UserID}, cid)
	case *protocol.BroadcastMessage:
		o.broadcastToRoom(from.RoomID, &protocol.MessageReceived{Message: ev.Message}, cid)
	case *protocol.WebRTCSignal:
		o.relay(from, ev)
	}
}

// Disconnect is called once the transport is gone. Safe to call repeatedly.
func (o *Orchestrator) Disconnect(cid core.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.conns[cid]
	if !ok {
		return
	}
	if a.state == Joined {
		o.leave(cid, a)
	}
	delete(o.conns, cid)
	log.Debug().Str("module", "orch").Str("cid", string(cid)).Msg("connection detached")
}

// BroadcastToRoom fans ev out to every open connection of roomID except exclude.
// It returns the number of connections that accepted the frame.
func (o *Orchestrator) BroadcastToRoom(roomID domain.RoomID, ev protocol.Outbound, exclude core.ConnID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.broadcastToRoom(roomID, ev, exclude)
}

func (o *Orchestrator) broadcastToRoom(roomID domain.RoomID, ev protocol.Outbound, exclude core.ConnID) int {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("broadcast encode")
		return 0
	}

	sent := 0
	var slow []core.ConnID
	for _, e := range o.Registry.ListByRoom(roomID) {
		if e.ID == exclude || !e.Conn.IsOpen() {
			continue
		}
		if err := e.Conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("cid", string(e.ID)).Str("type", string(ev.Kind())).Msg("broadcast send failed")
			if o.Policy != nil && o.Policy.OnBackPressure(e) == app.KickMember {
				slow = append(slow, e.ID)
			}
			continue
		}
		sent++
	}
	log.Debug().Str("module", "orch").Str("room", string(roomID)).Str("type", string(ev.Kind())).Int("sent_to", sent).Msg("broadcast result")

	for _, cid := range slow {
		o.kick(cid)
	}
	return sent
}

func (o *Orchestrator) kick(cid core.ConnID) {
	a, ok := o.conns[cid]
	if !ok || a.state != Joined {
		return
	}
	log.Info().Str("module", "orch").Str("cid", string(cid)).Msg("kicking slow consumer")
	o.leave(cid, a)
	a.conn.Close()
}

func (o *Orchestrator) send(cid core.ConnID, conn core.SignalConnection, ev protocol.Outbound) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("send encode")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Str("type", string(ev.Kind())).Msg("send failed")
	}
}

// participants builds the room snapshot with presence derived from the registry.
func (o *Orchestrator) participants(roomID domain.RoomID) []domain.ChatUser {
	records := o.Rooms.ListParticipants(roomID)
	slices.SortFunc(records, func(a, b domain.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	out := make([]domain.ChatUser, 0, len(records))
	for _, p := range records {
		user, ok := o.Users.Get(p.UserID)
		if !ok {
			continue
		}
		out = append(out, domain.ChatUser{
			ID:       user.ID,
			Username: user.Username,
			Role:     p.Role,
			IsOnline: o.Registry.IsOnline(roomID, p.UserID),
		})
	}
	return out
}
