package app

import (
	"testing"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/core/coretest"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(cid core.ConnID, uid domain.UserID, room domain.RoomID, conn core.SignalConnection) ConnEntry {
	return ConnEntry{ID: cid, Conn: conn, UserID: uid, Username: string(uid), RoomID: room, Role: domain.RoleUser}
}

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(entry("c1", "u1", "R1", coretest.NewConn()))

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), got.UserID)

	removed, ok := r.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("c1"), removed.ID)

	_, ok = r.Unregister("c1")
	assert.False(t, ok)
	_, ok = r.Get("c1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_FindByUserIDFirstOpen(t *testing.T) {
	r := NewRegistry()
	first := coretest.NewConn()
	second := coretest.NewConn()
	r.Register(entry("c1", "u1", "R1", first))
	r.Register(entry("c2", "u1", "R2", second))
	r.Register(entry("c3", "u2", "R1", coretest.NewConn()))

	got, ok := r.FindByUserID("u1")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("c1"), got.ID)

	first.Close()
	got, ok = r.FindByUserID("u1")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("c2"), got.ID)

	second.Close()
	_, ok = r.FindByUserID("u1")
	assert.False(t, ok)

	_, ok = r.FindByUserID("ghost")
	assert.False(t, ok)
}

func TestRegistry_ListByRoomOrdered(t *testing.T) {
	r := NewRegistry()
	r.Register(entry("c1", "u1", "R1", coretest.NewConn()))
	r.Register(entry("c2", "u2", "R2", coretest.NewConn()))
	r.Register(entry("c3", "u3", "R1", coretest.NewConn()))

	got := r.ListByRoom("R1")
	require.Len(t, got, 2)
	assert.Equal(t, core.ConnID("c1"), got[0].ID)
	assert.Equal(t, core.ConnID("c3"), got[1].ID)
	assert.Empty(t, r.ListByRoom("R9"))
}

func TestRegistry_Presence(t *testing.T) {
	r := NewRegistry()
	conn := coretest.NewConn()
	r.Register(entry("c1", "u1", "R1", conn))
	r.Register(entry("c2", "u1", "R1", coretest.NewConn()))

	assert.True(t, r.IsOnline("R1", "u1"))
	assert.False(t, r.IsOnline("R2", "u1"))
	assert.Equal(t, 2, r.CountByRoomUser("R1", "u1"))

	r.Unregister("c2")
	conn.Close()
	assert.False(t, r.IsOnline("R1", "u1"))
	assert.Equal(t, 1, r.CountByRoomUser("R1", "u1"))
}
