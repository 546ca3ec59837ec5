package app

import (
	"slices"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// ConnEntry is the live-transport record of a joined connection.
type ConnEntry struct {
	ID       core.ConnID
	Conn     core.SignalConnection
	UserID   domain.UserID
	Username string
	RoomID   domain.RoomID
	Role     domain.Role

	seq uint64
}

// Registry maps connection ids to entries. Entries remember registration order
// so that "first match" lookups are deterministic.
type Registry struct {
	mu      sync.RWMutex
	entries map[core.ConnID]*ConnEntry
	nextSeq uint64
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[core.ConnID]*ConnEntry),
	}
}

// Register stores e, replacing any entry with the same id.
func (r *Registry) Register(e ConnEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	e.seq = r.nextSeq
	r.entries[e.ID] = &e
	log.Info().Str("module", "app.registry").Str("cid", string(e.ID)).Str("room", string(e.RoomID)).Str("user", string(e.UserID)).Msg("registered connection")
}

func (r *Registry) Unregister(cid core.ConnID) (ConnEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cid]
	if !ok {
		return ConnEntry{}, false
	}
	delete(r.entries, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unregistered connection")
	return *e, true
}

func (r *Registry) Get(cid core.ConnID) (ConnEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[cid]; ok {
		return *e, true
	}
	return ConnEntry{}, false
}

// FindByUserID returns the earliest registered open connection of uid, in any room.
func (r *Registry) FindByUserID(uid domain.UserID) (ConnEntry, bool) {
	var found *ConnEntry
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.UserID != uid || !e.Conn.IsOpen() {
			continue
		}
		if found == nil || e.seq < found.seq {
			found = e
		}
	}
	if found == nil {
		return ConnEntry{}, false
	}
	return *found, true
}

// ListByRoom returns the room's entries in registration order, open or not.
func (r *Registry) ListByRoom(roomID domain.RoomID) []ConnEntry {
	r.mu.RLock()
	out := make([]ConnEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.RoomID == roomID {
			out = append(out, *e)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b ConnEntry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// IsOnline derives presence: some open connection binds uid to roomID.
func (r *Registry) IsOnline(roomID domain.RoomID, uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.RoomID == roomID && e.UserID == uid && e.Conn.IsOpen() {
			return true
		}
	}
	return false
}

// CountByRoomUser counts registered entries for the pair regardless of transport state.
func (r *Registry) CountByRoomUser(roomID domain.RoomID, uid domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.RoomID == roomID && e.UserID == uid {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
