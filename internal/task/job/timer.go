package job

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// minInterval is the floor applied to interval periods, so a zero or negative
// period cannot spin.
const minInterval = time.Millisecond

// Timer is a timeout or interval handle.
//
// A Timer is created idle; Start arms it. Cancel is final: a cancelled timer
// never fires again and cannot be restarted.
type Timer struct {
	clk      clockwork.Clock
	d        time.Duration
	periodic bool
	fn       func()

	fires atomic.Uint64

	mu        sync.Mutex
	t         clockwork.Timer
	armed     bool
	cancelled bool
	done      bool // one-shot already fired
}

// NewTimeout returns an idle one-shot timer that calls fn once, delay after Start.
func NewTimeout(clk clockwork.Clock, delay time.Duration, fn func()) *Timer {
	if delay < 0 {
		delay = 0
	}
	return newTimer(clk, delay, false, fn)
}

// NewInterval returns an idle periodic timer that calls fn every period after Start.
func NewInterval(clk clockwork.Clock, period time.Duration, fn func()) *Timer {
	if period < minInterval {
		period = minInterval
	}
	return newTimer(clk, period, true, fn)
}

// StartTimeout creates and arms a timeout. It is the dynamic-registration
// counterpart of NewTimeout.
func StartTimeout(clk clockwork.Clock, delay time.Duration, fn func()) *Timer {
	t := NewTimeout(clk, delay, fn)
	t.Start()
	return t
}

// StartInterval creates and arms an interval.
func StartInterval(clk clockwork.Clock, period time.Duration, fn func()) *Timer {
	t := NewInterval(clk, period, fn)
	t.Start()
	return t
}

func newTimer(clk clockwork.Clock, d time.Duration, periodic bool, fn func()) *Timer {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if fn == nil {
		fn = func() {}
	}
	return &Timer{clk: clk, d: d, periodic: periodic, fn: fn}
}

// Start arms the timer. It is a no-op if the timer is already armed or cancelled.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed || t.cancelled {
		return
	}
	t.armed = true
	t.t = t.clk.AfterFunc(t.d, t.fire)
}

// Cancel disarms the timer. After Cancel returns no new invocation of the
// target begins; an invocation already running is not interrupted.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.cancelled || t.done {
		t.mu.Unlock()
		return
	}
	if t.periodic {
		t.t = t.clk.AfterFunc(t.d, t.fire)
	} else {
		t.done = true
		t.t = nil
	}
	t.mu.Unlock()

	t.fires.Add(1)
	t.fn()
}

// Active reports whether the timer is armed and may still fire.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed && !t.cancelled && !t.done
}

// Periodic reports whether this is an interval.
func (t *Timer) Periodic() bool { return t.periodic }

// Duration returns the delay (timeout) or period (interval).
func (t *Timer) Duration() time.Duration { return t.d }

// Fires returns how many times the target has been invoked.
func (t *Timer) Fires() uint64 { return t.fires.Load() }
