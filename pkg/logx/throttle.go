package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits log lines per key, so a unit that keeps failing on
// every fire does not flood the sinks.
//
// Each key gets its own token bucket refilled once per interval with the
// given burst. The zero value is not usable; use NewThrottle.
type Throttle struct {
	mu     sync.Mutex
	every  rate.Limit
	burst  int
	perKey map[string]*rate.Limiter
}

func NewThrottle(interval time.Duration, burst int) *Throttle {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		every:  rate.Every(interval),
		burst:  burst,
		perKey: map[string]*rate.Limiter{},
	}
}

// Allow reports whether a line for key may be written now.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	lim, ok := t.perKey[key]
	if !ok {
		lim = rate.NewLimiter(t.every, t.burst)
		t.perKey[key] = lim
	}
	t.mu.Unlock()
	return lim.Allow()
}

// Forget drops the bucket for key.
func (t *Throttle) Forget(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.perKey, key)
	t.mu.Unlock()
}
