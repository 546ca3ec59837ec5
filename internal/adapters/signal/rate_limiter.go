package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
)

// RateLimiter caps inbound frames per connection over a sliding window.
// A zero limit allows everything.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[core.ConnID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[core.ConnID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(cid core.ConnID) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[cid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[cid] = fresh
		return false
	}
	rl.history[cid] = append(fresh, now)
	return true
}

func (rl *RateLimiter) Forget(cid core.ConnID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, cid)
	rl.mu.Unlock()
}
