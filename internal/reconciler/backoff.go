package reconciler

import "time"

const (
	baseReconnectDelay = time.Second
	maxReconnectDelay  = 30 * time.Second
	maxReconnectCount  = 10
)

// ReconnectDelay is the wait before reconnect attempt n (1-based):
// min(30s, 1s * 2^n).
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxReconnectCount {
		attempt = maxReconnectCount
	}
	delay := baseReconnectDelay << uint(attempt)
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}

// nextAttempt increments the reconnect counter, capped.
func nextAttempt(current int) int {
	return min(maxReconnectCount, current+1)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
