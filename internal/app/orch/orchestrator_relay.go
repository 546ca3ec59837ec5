package orch

import (
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
	"github.com/rs/zerolog/log"
)

// relay forwards a negotiation signal to exactly one connection of the target
// user. The payload is passed through byte for byte. A missing or closed target
// drops the signal silently, since peers may vanish mid-handshake.
func (o *Orchestrator) relay(from app.ConnEntry, ev *protocol.WebRTCSignal) {
	target, ok := o.Registry.FindByUserID(domain.UserID(ev.TargetUserID))
	if !ok {
		log.Debug().Str("module", "orch").Str("cid", string(from.ID)).Str("target", ev.TargetUserID).Msg("signal dropped: no target")
		return
	}
	frame, err := protocol.Encode(&protocol.SignalForward{
		Signal:       ev.Signal,
		FromUserID:   from.UserID,
		FromUsername: from.Username,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("signal encode")
		return
	}
	if err := target.Conn.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("cid", string(target.ID)).Msg("signal dropped: send failed")
	}
}
