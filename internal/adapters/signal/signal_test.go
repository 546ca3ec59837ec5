package signal

import (
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWsSignalConn_Backpressure(t *testing.T) {
	c := NewWsSignalConn(nil, 2)

	require.NoError(t, c.TrySend(core.Frame(`1`)))
	require.NoError(t, c.TrySend(core.Frame(`2`)))
	err := c.TrySend(core.Frame(`3`))
	assert.ErrorIs(t, err, core.ErrBackpressure)
	assert.ErrorIs(t, err, domain.ErrTransportUnavailable)
	assert.True(t, c.IsOpen())
}

func TestWsSignalConn_CloseIdempotent(t *testing.T) {
	c := NewWsSignalConn(nil, 4)
	require.NoError(t, c.TrySend(core.Frame(`queued`)))

	c.Close()
	c.Close()

	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.TrySend(core.Frame(`late`)), core.ErrConnClosed)

	// Queued frames stay readable for the write pump to flush.
	f, ok := <-c.send
	require.True(t, ok)
	assert.Equal(t, core.Frame(`queued`), f)
	_, ok = <-c.send
	assert.False(t, ok)
}

func TestWsSignalConn_CloseCode(t *testing.T) {
	c := NewWsSignalConn(nil, 1)
	c.Close()
	c.closeWith(websocket.CloseGoingAway)
	assert.Equal(t, websocket.CloseNormalClosure, c.closeCode(), "first close wins")

	c = NewWsSignalConn(nil, 1)
	c.closeWith(websocket.CloseGoingAway)
	c.Close()
	assert.Equal(t, websocket.CloseGoingAway, c.closeCode())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per connection")

	clock = clock.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow("a"))
	}
	var none *RateLimiter
	assert.True(t, none.Allow("a"))
	none.Forget("a")
}
