package orchestrator

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"schedkit/internal/eventbus"
	"schedkit/internal/task/job"
	"schedkit/internal/task/registry"
	logx "schedkit/pkg/logx"
)

// Event types published on the bus.
const (
	EventMounted = "schedule.mounted"
	EventCleared = "schedule.cleared"
	EventFired   = "schedule.fired"
)

// Counts is the payload of EventMounted and EventCleared.
type Counts struct {
	Timeouts  int
	Intervals int
	CronJobs  int
}

// Fired is the payload of EventFired.
type Fired struct {
	Kind registry.Kind
	Name string
}

// panicLogInterval bounds how often a repeatedly panicking target is logged.
const panicLogInterval = 30 * time.Second

// Orchestrator buffers static registrations and materializes them into the
// Registry at Bootstrap; Shutdown cancels exactly the units it materialized.
type Orchestrator struct {
	reg *registry.Registry
	clk clockwork.Clock
	log logx.Logger
	bus eventbus.Bus
	tz  string

	panics *logx.Throttle

	mu           sync.Mutex
	timeouts     buffer[pendingTimer]
	intervals    buffer[pendingTimer]
	crons        buffer[pendingCron]
	bootstrapped bool
}

type Option func(*Orchestrator)

// WithClock sets the clock handles run on (default: real time).
func WithClock(clk clockwork.Clock) Option { return func(o *Orchestrator) { o.clk = clk } }

func WithLogger(log logx.Logger) Option { return func(o *Orchestrator) { o.log = log } }

// WithBus publishes mount/clear/fire events to bus.
func WithBus(bus eventbus.Bus) Option { return func(o *Orchestrator) { o.bus = bus } }

// WithDefaultTimezone applies tz to cron entries that set neither a time zone
// nor a UTC offset.
func WithDefaultTimezone(tz string) Option {
	return func(o *Orchestrator) { o.tz = strings.TrimSpace(tz) }
}

func New(reg *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:       reg,
		timeouts:  newBuffer[pendingTimer](),
		intervals: newBuffer[pendingTimer](),
		crons:     newBuffer[pendingCron](),
		panics:    logx.NewThrottle(panicLogInterval, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clk == nil {
		o.clk = clockwork.NewRealClock()
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.bus == nil {
		o.bus = eventbus.Nop()
	}
	return o
}

// Registry returns the registry units are published to.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Clock returns the clock handles run on, for callers building dynamic units.
func (o *Orchestrator) Clock() clockwork.Clock { return o.clk }

// AddTimeout buffers a one-shot unit. An empty name is replaced by a generated
// one; the effective name is returned.
func (o *Orchestrator) AddTimeout(target Target, delay time.Duration, name string) string {
	return o.addTimer(&o.timeouts, registry.KindTimeout, target, delay, name)
}

// AddInterval buffers a periodic unit. An empty name is replaced by a
// generated one; the effective name is returned.
func (o *Orchestrator) AddInterval(target Target, period time.Duration, name string) string {
	return o.addTimer(&o.intervals, registry.KindInterval, target, period, name)
}

func (o *Orchestrator) addTimer(b *buffer[pendingTimer], kind registry.Kind, target Target, d time.Duration, name string) string {
	name = nameOrGenerate(name)
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := b.items[name]; ok && p.ref != nil {
		o.warnMounted(kind, name)
		return name
	}
	b.put(name, &pendingTimer{target: target, d: d})
	o.noteLateAdd(kind, name)
	return name
}

// AddCron buffers a cron unit. The descriptor is validated now so a bad
// expression fails at registration rather than at Bootstrap.
func (o *Orchestrator) AddCron(target Target, opts job.CronOptions) (string, error) {
	opts = o.withDefaultZone(opts)
	if err := opts.Validate(); err != nil {
		return "", errors.Wrapf(err, "cron %q", opts.Name)
	}
	name := nameOrGenerate(opts.Name)
	opts.Name = name
	opts.Namespace = opts.NamespaceOrDefault()

	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.crons.items[name]; ok && p.ref != nil {
		o.warnMounted(registry.KindCron, name)
		return name, nil
	}
	o.crons.put(name, &pendingCron{target: target, opts: opts})
	o.noteLateAdd(registry.KindCron, name)
	return name, nil
}

// noteLateAdd warns about entries buffered after Bootstrap: they are kept
// but only a further Bootstrap call will mount them. Call with o.mu held.
func (o *Orchestrator) noteLateAdd(kind registry.Kind, name string) {
	if o.bootstrapped {
		o.log.Warn("unit registered after bootstrap; it will not run until the next mount",
			logx.String("kind", string(kind)), logx.String("name", name))
	}
}

// warnMounted reports a re-registration of a unit that is already live; the
// live unit is kept. Call with o.mu held.
func (o *Orchestrator) warnMounted(kind registry.Kind, name string) {
	o.log.Warn("unit already mounted; registration ignored",
		logx.String("kind", string(kind)), logx.String("name", name))
}

func (o *Orchestrator) withDefaultZone(opts job.CronOptions) job.CronOptions {
	if o.tz != "" && strings.TrimSpace(opts.TimeZone) == "" && strings.TrimSpace(opts.UTCOffset) == "" {
		opts.TimeZone = o.tz
	}
	return opts
}

func nameOrGenerate(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return uuid.NewString()
}

// Bootstrapped reports whether Bootstrap has run.
func (o *Orchestrator) Bootstrapped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bootstrapped
}

// Pending returns the buffered names per kind, in insertion order.
func (o *Orchestrator) Pending() (timeouts, intervals, crons []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timeouts.names(), o.intervals.names(), o.crons.names()
}

// Bootstrap materializes every buffered unit that is not mounted yet:
// timeouts, then intervals, then cron jobs, each kind in insertion order.
//
// Each handle is published to the Registry before it is armed, so a unit is
// gettable before its first fire. A registry error (typically a duplicate
// name) stops the loop for that kind; the other kinds still mount and all
// errors are returned combined.
func (o *Orchestrator) Bootstrap() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bootstrapped = true

	var (
		n    Counts
		errs error
		err  error
	)
	n.Timeouts, err = o.mountTimers(&o.timeouts, registry.KindTimeout)
	errs = errors.CombineErrors(errs, err)
	n.Intervals, err = o.mountTimers(&o.intervals, registry.KindInterval)
	errs = errors.CombineErrors(errs, err)
	n.CronJobs, err = o.mountCrons()
	errs = errors.CombineErrors(errs, err)

	o.log.Info("scheduled units mounted",
		logx.Int("timeouts", n.Timeouts), logx.Int("intervals", n.Intervals), logx.Int("cron_jobs", n.CronJobs))
	o.bus.Publish(eventbus.Event{Type: EventMounted, Time: o.clk.Now(), Data: n})
	return errs
}

func (o *Orchestrator) mountTimers(b *buffer[pendingTimer], kind registry.Kind) (int, error) {
	mounted := 0
	err := b.each(func(name string, p *pendingTimer) error {
		if p.ref != nil {
			return nil
		}
		fire := o.wrap(kind, name, p.target)
		var t *job.Timer
		var err error
		if kind == registry.KindInterval {
			t = job.NewInterval(o.clk, p.d, fire)
			err = o.reg.AddInterval(name, t)
		} else {
			t = job.NewTimeout(o.clk, p.d, fire)
			err = o.reg.AddTimeout(name, t)
		}
		if err != nil {
			return err
		}
		t.Start()
		p.ref = t
		mounted++
		o.log.Debug("unit mounted", logx.String("kind", string(kind)), logx.String("name", name), logx.Duration("every", p.d))
		return nil
	})
	return mounted, err
}

func (o *Orchestrator) mountCrons() (int, error) {
	mounted := 0
	err := o.crons.each(func(name string, p *pendingCron) error {
		if p.ref != nil {
			return nil
		}
		cj, err := job.NewCronJob(o.clk, p.opts, o.wrap(registry.KindCron, name, p.target))
		if err != nil {
			return errors.Wrapf(err, "cron %q", name)
		}
		if err := o.reg.AddCronJob(name, cj, p.opts.Namespace); err != nil {
			return err
		}
		if p.opts.AutoStart {
			cj.Start()
		}
		p.ref = cj
		mounted++
		o.log.Debug("unit mounted",
			logx.String("kind", string(registry.KindCron)),
			logx.String("name", name),
			logx.String("spec", cj.Spec()),
			logx.String("namespace", p.opts.Namespace),
			logx.Bool("running", cj.Running()),
			logx.Time("next", cj.NextDate()))
		return nil
	})
	return mounted, err
}

// Shutdown cancels every timer and stops every cron job this Orchestrator
// mounted. Units added to the Registry directly are left alone.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	var n Counts
	_ = o.timeouts.each(func(_ string, p *pendingTimer) error {
		if p.ref != nil {
			p.ref.Cancel()
			n.Timeouts++
		}
		return nil
	})
	_ = o.intervals.each(func(_ string, p *pendingTimer) error {
		if p.ref != nil {
			p.ref.Cancel()
			n.Intervals++
		}
		return nil
	})
	_ = o.crons.each(func(_ string, p *pendingCron) error {
		if p.ref != nil {
			p.ref.Stop()
			n.CronJobs++
		}
		return nil
	})

	o.log.Info("scheduled units cleared",
		logx.Int("timeouts", n.Timeouts), logx.Int("intervals", n.Intervals), logx.Int("cron_jobs", n.CronJobs))
	o.bus.Publish(eventbus.Event{Type: EventCleared, Time: o.clk.Now(), Data: n})
}

// wrap turns a target into a fire callback: it announces the fire and
// recovers a panicking target so one unit cannot take the process down.
func (o *Orchestrator) wrap(kind registry.Kind, name string, target Target) func() {
	key := string(kind) + "/" + name
	return func() {
		defer func() {
			if r := recover(); r != nil && o.panics.Allow(key) {
				o.log.Error("scheduled target panicked",
					logx.String("kind", string(kind)),
					logx.String("name", name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())))
			}
		}()
		o.bus.Publish(eventbus.Event{Type: EventFired, Time: o.clk.Now(), Data: Fired{Kind: kind, Name: name}})
		if target != nil {
			target()
		}
	}
}
