package client

import "time"

// Backoff is the delay before reconnect attempt n (zero based): base*2^n,
// capped at max.
func Backoff(n int, base, max time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 30 {
		return max
	}
	d := base << n
	if d <= 0 || d > max {
		return max
	}
	return d
}
