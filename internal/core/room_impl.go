package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// directory is a threadsafe in-memory RoomDirectory.
// Participants are keyed room -> user, so a second record per pair cannot exist.
type directory struct {
	mu           sync.RWMutex
	rooms        map[domain.RoomID]domain.Room
	participants map[domain.RoomID]map[domain.UserID]domain.Participant
	now          func() time.Time
}

func NewRoomDirectory() RoomDirectory {
	return newDirectory(time.Now)
}

func newDirectory(now func() time.Time) *directory {
	return &directory{
		rooms:        make(map[domain.RoomID]domain.Room),
		participants: make(map[domain.RoomID]map[domain.UserID]domain.Participant),
		now:          now,
	}
}

func (d *directory) CreateRoom(id domain.RoomID, name domain.RoomName) (domain.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[id]; ok {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrConflict)
	}
	room := domain.Room{ID: id, Name: name, CreatedAt: d.now(), IsActive: true}
	d.rooms[id] = room
	d.participants[id] = make(map[domain.UserID]domain.Participant)
	log.Info().Str("module", "core.directory").Str("room", string(id)).Msg("room created")
	return room, nil
}

func (d *directory) GetRoom(id domain.RoomID) (domain.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[id]
	return room, ok
}

func (d *directory) DeleteRoom(id domain.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[id]; !ok {
		return fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	delete(d.rooms, id)
	delete(d.participants, id)
	log.Info().Str("module", "core.directory").Str("room", string(id)).Msg("room deleted")
	return nil
}

func (d *directory) ListRooms() []RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RoomInfo, 0, len(d.rooms))
	for id, room := range d.rooms {
		out = append(out, RoomInfo{Room: room, ParticipantCount: len(d.participants[id])})
	}
	return out
}

func (d *directory) ListParticipants(id domain.RoomID) []domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := d.participants[id]
	out := make([]domain.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	return out
}

func (d *directory) ParticipantCount(id domain.RoomID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.participants[id])
}

func (d *directory) GetParticipant(id domain.RoomID, uid domain.UserID) (domain.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[id][uid]
	return p, ok
}

// AddParticipant replaces any existing record for the pair.
func (d *directory) AddParticipant(id domain.RoomID, uid domain.UserID, role domain.Role) (domain.Participant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[id]; !ok {
		return domain.Participant{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	p := domain.Participant{RoomID: id, UserID: uid, Role: role, JoinedAt: d.now()}
	d.participants[id][uid] = p
	log.Info().Str("module", "core.directory").Str("room", string(id)).Str("user", string(uid)).Str("role", string(role)).Msg("participant added")
	return p, nil
}

func (d *directory) RemoveParticipant(id domain.RoomID, uid domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.participants[id]
	if !ok {
		return
	}
	if _, ok := members[uid]; !ok {
		return
	}
	delete(members, uid)
	log.Info().Str("module", "core.directory").Str("room", string(id)).Str("user", string(uid)).Msg("participant removed")
}
