package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Orch       *orch.Orchestrator
	Limiter    *RateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:       o,
		Limiter:    NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	}
}

// WsSignalConn is the websocket side of core.SignalConnection. Frames queue on
// send and are written by the write pump only.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
	code   int
}

func NewWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer < 1 {
		buffer = 1
	}
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close stops accepting frames. The write pump flushes what is queued, sends a
// normal closure and releases the socket.
func (c *WsSignalConn) Close() {
	c.closeWith(websocket.CloseNormalClosure)
}

// closeWith is Close with the given close code. The first call wins.
func (c *WsSignalConn) closeWith(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	close(c.send)
}

func (c *WsSignalConn) closeCode() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewWsSignalConn(ws, ctl.SendBuffer)
	cid := ctl.Orch.Attach(conn)
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(cid, conn)
}
