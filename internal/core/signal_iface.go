package core

import (
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
)

// Frame is one encoded realtime event.
type Frame []byte

// ConnID identifies one transport connection; minted at connect time.
type ConnID string

var (
	ErrBackpressure = fmt.Errorf("backpressure: %w", domain.ErrTransportUnavailable)
	ErrConnClosed   = fmt.Errorf("connection closed: %w", domain.ErrTransportUnavailable)
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking.
	TrySend(Frame) error
	IsOpen() bool
	Close()
}
