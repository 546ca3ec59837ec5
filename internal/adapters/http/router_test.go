package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		ReadLimit:  1 << 20,
		PingPeriod: time.Minute,
		Secret:     "test-secret",
		SendBuffer: 64,
	}
	codes, err := app.NewRoomCodes()
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRoomDirectory(),
		Users:    app.NewUsers(),
		Policy:   app.DropPolicy{},
		Codes:    codes,
	}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func createRoom(t *testing.T, hc *http.Client, srv *httptest.Server, body string) domain.Room {
	t.Helper()
	resp, err := hc.Post(srv.URL+"/api/rooms", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var room domain.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	return room
}

func roomStatus(t *testing.T, hc *http.Client, srv *httptest.Server, id domain.RoomID) (int, core.RoomInfo) {
	t.Helper()
	resp, err := hc.Get(srv.URL + "/api/rooms/" + string(id))
	require.NoError(t, err)
	defer resp.Body.Close()
	var info core.RoomInfo
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	}
	return resp.StatusCode, info
}

func deleteRoom(t *testing.T, hc *http.Client, srv *httptest.Server, id domain.RoomID) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/rooms/"+string(id), nil)
	require.NoError(t, err)
	resp, err := hc.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

type wsPeer struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, path string) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &wsPeer{t: t, ws: ws}
}

func (p *wsPeer) send(v any) {
	p.t.Helper()
	require.NoError(p.t, p.ws.WriteJSON(v))
}

// next reads frames until one of type typ arrives and decodes it into v.
func (p *wsPeer) next(typ string, v any) {
	p.t.Helper()
	require.NoError(p.t, p.ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := p.ws.ReadMessage()
		require.NoError(p.t, err, "waiting for %s", typ)
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(p.t, json.Unmarshal(data, &env))
		if env.Type == typ {
			if v != nil {
				require.NoError(p.t, json.Unmarshal(data, v))
			}
			return
		}
	}
}

// silent asserts nothing arrives for a short while. The connection is not
// readable afterwards.
func (p *wsPeer) silent() {
	p.t.Helper()
	require.NoError(p.t, p.ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := p.ws.ReadMessage()
	assert.Error(p.t, err, "unexpected frame %s", data)
}

type joinedAck struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

func (p *wsPeer) join(username string, room domain.RoomID) joinedAck {
	p.t.Helper()
	p.send(map[string]string{"type": "join_room", "username": username, "roomId": string(room)})
	var ack joinedAck
	p.next("joined_room", &ack)
	p.next("participants_update", nil)
	return ack
}

func TestRoomsAPI_CreateAndGet(t *testing.T) {
	srv := newTestServer(t)
	hc := newClient(t)

	room := createRoom(t, hc, srv, `{}`)
	assert.Len(t, room.ID, domain.RoomIDLen)
	assert.Equal(t, strings.ToUpper(string(room.ID)), string(room.ID))
	assert.Equal(t, domain.RoomName("Room "+string(room.ID)), room.Name)
	assert.True(t, room.IsActive)

	named := createRoom(t, hc, srv, `{"name":"Book club"}`)
	assert.Equal(t, domain.RoomName("Book club"), named.Name)
	assert.NotEqual(t, room.ID, named.ID)

	empty := createRoom(t, hc, srv, ``)
	assert.NotEmpty(t, empty.ID)

	status, info := roomStatus(t, hc, srv, room.ID)
	assert.Equal(t, http.StatusOK, status)
	assert.Zero(t, info.ParticipantCount)

	status, _ = roomStatus(t, hc, srv, "NOPE0000")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = roomStatus(t, hc, srv, "nope")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := hc.Post(srv.URL+"/api/rooms", "application/json", bytes.NewBufferString(`{"name":`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = hc.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Rooms, 3)
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t)
	hc := newClient(t)
	room := createRoom(t, hc, srv, `{}`)
	other := createRoom(t, hc, srv, `{"name":"elsewhere"}`)

	alice := dial(t, srv, "/ws")
	aliceAck := alice.join("alice", room.ID)
	assert.Equal(t, room.ID, aliceAck.RoomID)

	bob := dial(t, srv, "/api/ws")
	bobAck := bob.join("bob", room.ID)
	var joinedEv struct {
		Username string `json:"username"`
	}
	alice.next("user_joined", &joinedEv)
	assert.Equal(t, "bob", joinedEv.Username)

	carol := dial(t, srv, "/ws")
	carol.join("carol", other.ID)

	status, info := roomStatus(t, hc, srv, room.ID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, info.ParticipantCount)

	alice.send(map[string]any{
		"type": "broadcast_message",
		"message": map[string]any{
			"id": "m1", "content": "hello", "senderId": aliceAck.UserID,
			"senderName": "alice", "timestamp": 1, "type": "user",
		},
	})
	var got struct {
		Message domain.Message `json:"message"`
	}
	bob.next("message_received", &got)
	assert.Equal(t, "hello", got.Message.Content)
	assert.Equal(t, aliceAck.UserID, got.Message.SenderID)

	alice.send(map[string]any{
		"type":         "webrtc_signal",
		"targetUserId": bobAck.UserID,
		"signal":       map[string]any{"type": "offer", "sdp": "v=0"},
	})
	var fwd struct {
		Signal       json.RawMessage `json:"signal"`
		FromUserID   domain.UserID   `json:"fromUserId"`
		FromUsername string          `json:"fromUsername"`
	}
	bob.next("webrtc_signal", &fwd)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(fwd.Signal))
	assert.Equal(t, aliceAck.UserID, fwd.FromUserID)
	assert.Equal(t, "alice", fwd.FromUsername)

	// Abrupt close without a close handshake.
	require.NoError(t, bob.ws.UnderlyingConn().Close())
	var left struct {
		UserID domain.UserID `json:"userId"`
	}
	alice.next("user_left", &left)
	assert.Equal(t, bobAck.UserID, left.UserID)

	_, info = roomStatus(t, hc, srv, room.ID)
	assert.Equal(t, 1, info.ParticipantCount)

	carol.silent()
}

func TestJoinUnknownRoom(t *testing.T) {
	srv := newTestServer(t)
	p := dial(t, srv, "/ws")

	p.send(map[string]string{"type": "join_room", "username": "alice", "roomId": "NOPE0000"})
	var ev struct {
		Message string `json:"message"`
	}
	p.next("error", &ev)
	assert.Equal(t, "room not found", ev.Message)
}

func TestDeleteRoom_CreatorOnly(t *testing.T) {
	srv := newTestServer(t)
	creator := newClient(t)
	stranger := newClient(t)
	room := createRoom(t, creator, srv, `{}`)

	alice := dial(t, srv, "/ws")
	alice.join("alice", room.ID)

	assert.Equal(t, http.StatusForbidden, deleteRoom(t, stranger, srv, room.ID))
	assert.Equal(t, http.StatusNoContent, deleteRoom(t, creator, srv, room.ID))

	var closed struct {
		RoomID domain.RoomID `json:"roomId"`
	}
	alice.next("room_closed", &closed)
	assert.Equal(t, room.ID, closed.RoomID)

	_, _, err := alice.ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	status, _ := roomStatus(t, creator, srv, room.ID)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, deleteRoom(t, creator, srv, room.ID))
	assert.Equal(t, http.StatusNotFound, deleteRoom(t, creator, srv, "bad-code"))
}

func TestDeleteRoom_OwnershipFollowsClientToken(t *testing.T) {
	srv := newTestServer(t)
	creator := newClient(t)
	first := createRoom(t, creator, srv, `{}`)
	second := createRoom(t, creator, srv, `{}`)

	// A raw token cookie is not the signed session and grants nothing.
	forged := newClient(t)
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/rooms/"+string(first.ID), nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "ct", Value: "whatever"})
	resp, err := forged.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Equal(t, http.StatusNoContent, deleteRoom(t, creator, srv, second.ID))
	assert.Equal(t, http.StatusNoContent, deleteRoom(t, creator, srv, first.ID))
}
