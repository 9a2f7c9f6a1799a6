package job

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// CronJob fires a target on a cron schedule (or once at a fixed date).
//
// Jobs are created stopped. Start and Stop may be called any number of times;
// a fixed-date job, or a schedule with no further matches, stops itself.
type CronJob struct {
	clk   clockwork.Clock
	sched cron.Schedule
	loc   *time.Location
	fn    func()
	spec  string
	unref bool

	fires atomic.Uint64

	mu      sync.Mutex
	timer   clockwork.Timer
	running bool
	gen     uint64 // bumped on every Start/Stop so stale callbacks are ignored
	last    time.Time
	next    time.Time
}

// NewCronJob builds a stopped job from opts. AutoStart and Namespace are
// orchestration concerns and are ignored here.
func NewCronJob(clk clockwork.Clock, opts CronOptions, fn func()) (*CronJob, error) {
	sched, loc, err := opts.compile()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if fn == nil {
		fn = func() {}
	}
	spec := strings.TrimSpace(opts.Spec)
	if spec == "" {
		spec = "@at " + opts.At.Format(time.RFC3339)
	}
	return &CronJob{
		clk:   clk,
		sched: sched,
		loc:   loc,
		fn:    fn,
		spec:  spec,
		unref: opts.Unref,
	}, nil
}

// Start begins firing. It is a no-op when already running.
func (j *CronJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.gen++
	j.armLocked(j.clk.Now())
}

// Stop halts future fires. An invocation already in progress is not interrupted.
func (j *CronJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopLocked()
}

func (j *CronJob) stopLocked() {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if j.running {
		j.gen++
	}
	j.running = false
	j.next = time.Time{}
}

// armLocked schedules the next fire strictly after from.
func (j *CronJob) armLocked(from time.Time) {
	next := j.sched.Next(from.In(j.loc))
	if next.IsZero() {
		j.stopLocked()
		return
	}
	j.next = next
	gen := j.gen
	j.timer = j.clk.AfterFunc(next.Sub(j.clk.Now()), func() { j.fire(gen, next) })
}

func (j *CronJob) fire(gen uint64, at time.Time) {
	j.mu.Lock()
	if !j.running || gen != j.gen {
		j.mu.Unlock()
		return
	}
	j.last = at
	from := j.clk.Now()
	if from.Before(at) {
		from = at
	}
	j.armLocked(from)
	j.mu.Unlock()

	j.fires.Add(1)
	j.fn()
}

// Running reports whether the job is started.
func (j *CronJob) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// LastDate returns the scheduled time of the most recent fire, or the zero
// time if the job never fired.
func (j *CronJob) LastDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// NextDate returns the next scheduled fire, or the zero time when stopped.
func (j *CronJob) NextDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

// Spec returns the source expression ("@at <RFC3339>" for fixed-date jobs).
func (j *CronJob) Spec() string { return j.spec }

// Location returns the zone the schedule is evaluated in.
func (j *CronJob) Location() *time.Location { return j.loc }

// Unref reports the unref flag the job was built with.
func (j *CronJob) Unref() bool { return j.unref }

// Fires returns how many times the target has been invoked.
func (j *CronJob) Fires() uint64 { return j.fires.Load() }
