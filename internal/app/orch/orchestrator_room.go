package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
	"github.com/rs/zerolog/log"
)

const createAttempts = 5

func (o *Orchestrator) join(cid core.ConnID, a *attachment, ev *protocol.JoinRoom) {
	roomID := domain.RoomID(ev.RoomID)
	if !app.IsValidRoomCode(roomID) {
		log.Info().Str("module", "orch").Str("cid", string(cid)).Str("room", string(roomID)).Msg("join with malformed room code")
		o.send(cid, a.conn, &protocol.Error{Message: msgRoomNotFound})
		return
	}
	role, err := domain.ParseRole(ev.Role)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("bad join role")
		o.send(cid, a.conn, &protocol.Error{Message: msgMalformed})
		return
	}
	if _, ok := o.Rooms.GetRoom(roomID); !ok {
		log.Info().Str("module", "orch").Str("cid", string(cid)).Str("room", string(roomID)).Msg("join to unknown room")
		o.send(cid, a.conn, &protocol.Error{Message: msgRoomNotFound})
		return
	}
	user, err := o.Users.ResolveOrCreate(ev.Username)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("bad join username")
		o.send(cid, a.conn, &protocol.Error{Message: msgMalformed})
		return
	}
	if _, err := o.Rooms.AddParticipant(roomID, user.ID, role); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("join failed")
		o.send(cid, a.conn, &protocol.Error{Message: msgRoomNotFound})
		return
	}

	o.Registry.Register(app.ConnEntry{
		ID:       cid,
		Conn:     a.conn,
		UserID:   user.ID,
		Username: user.Username,
		RoomID:   roomID,
		Role:     role,
	})
	a.state = Joined
	log.Info().Str("module", "orch").Str("cid", string(cid)).Str("room", string(roomID)).Str("user", string(user.ID)).Msg("joined")

	o.send(cid, a.conn, &protocol.JoinedRoom{RoomID: roomID, UserID: user.ID, Username: user.Username})
	o.broadcastToRoom(roomID, &protocol.UserJoined{Username: user.Username, UserID: user.ID, Role: role}, cid)
	o.send(cid, a.conn, &protocol.ParticipantsUpdate{Participants: o.participants(roomID)})
}

// leave moves a joined connection to Closed. The participant record survives
// while another connection of the same user is still in the room.
func (o *Orchestrator) leave(cid core.ConnID, a *attachment) {
	a.state = Closed
	e, ok := o.Registry.Unregister(cid)
	if !ok {
		return
	}
	if o.Registry.CountByRoomUser(e.RoomID, e.UserID) > 0 {
		log.Info().Str("module", "orch").Str("cid", string(cid)).Str("user", string(e.UserID)).Msg("left, user still present")
		return
	}
	o.Rooms.RemoveParticipant(e.RoomID, e.UserID)
	log.Info().Str("module", "orch").Str("cid", string(cid)).Str("room", string(e.RoomID)).Str("user", string(e.UserID)).Msg("left")
	o.broadcastToRoom(e.RoomID, &protocol.UserLeft{Username: e.Username, UserID: e.UserID}, cid)
}

// CreateRoom mints a fresh room code. An empty name becomes "Room <id>".
// owner is the client token allowed to close the room; empty means nobody.
func (o *Orchestrator) CreateRoom(name, owner string) (domain.Room, error) {
	for i := 0; i < createAttempts; i++ {
		id := o.Codes()
		roomName := domain.RoomName(name)
		if roomName == "" {
			roomName = domain.RoomName("Room " + string(id))
		}
		room, err := o.Rooms.CreateRoom(id, roomName)
		if errors.Is(err, domain.ErrConflict) {
			log.Warn().Str("module", "orch").Str("room", string(id)).Msg("room code collision")
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		if owner != "" {
			o.mu.Lock()
			if o.owners == nil {
				o.owners = make(map[domain.RoomID]string)
			}
			o.owners[room.ID] = owner
			o.mu.Unlock()
		}
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room after %d attempts: %w", createAttempts, domain.ErrConflict)
}

func (o *Orchestrator) RoomInfo(id domain.RoomID) (core.RoomInfo, bool) {
	room, ok := o.Rooms.GetRoom(id)
	if !ok {
		return core.RoomInfo{}, false
	}
	return core.RoomInfo{Room: room, ParticipantCount: o.Rooms.ParticipantCount(id)}, true
}

func (o *Orchestrator) IsOwner(id domain.RoomID, token string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.owners[id]
	return ok && token != "" && owner == token
}

// EvictRoom tells every member the room is gone, closes their transports and
// deletes the room with its participants.
func (o *Orchestrator) EvictRoom(id domain.RoomID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.Rooms.GetRoom(id); !ok {
		return fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	members := o.Registry.ListByRoom(id)
	// Members are Closed before the fan-out, so kick leaves them alone.
	for _, e := range members {
		if a, ok := o.conns[e.ID]; ok {
			a.state = Closed
		}
	}
	o.broadcastToRoom(id, &protocol.RoomClosed{RoomID: id}, "")
	for _, e := range members {
		o.Registry.Unregister(e.ID)
		e.Conn.Close()
	}
	delete(o.owners, id)
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room evicted")
	return o.Rooms.DeleteRoom(id)
}
