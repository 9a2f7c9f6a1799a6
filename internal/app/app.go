package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"schedkit/internal/config"
	"schedkit/internal/eventbus"
	"schedkit/internal/runtime/supervisor"
	"schedkit/internal/task/orchestrator"
	"schedkit/internal/task/registry"
	logx "schedkit/pkg/logx"
	"schedkit/pkg/systemd"
)

// EventStarted is published once every declared job is mounted.
const EventStarted = "app.started"

// App hosts the scheduler: it declares configured jobs through the
// orchestrator, mounts them on Start, keeps config hot-reloaded, and clears
// everything it mounted on Stop.
type App struct {
	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus
	clk  clockwork.Clock

	reg      *registry.Registry
	orch     *orchestrator.Orchestrator
	handlers *HandlerCatalog

	sup      *supervisor.Supervisor
	stopOnce sync.Once

	mu      sync.Mutex
	applied *config.Config
}

type Option func(*App)

// WithClock runs every scheduled unit on clk.
func WithClock(clk clockwork.Clock) Option { return func(a *App) { a.clk = clk } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	logs, log := logx.New(logConfig(cfg))
	a := &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log.With(logx.String("comp", "app")),
		bus:      eventbus.New(),
		reg:      registry.New(),
		handlers: NewHandlerCatalog(),
		applied:  cfg,
	}
	for _, o := range opts {
		o(a)
	}
	if a.clk == nil {
		a.clk = clockwork.NewRealClock()
	}
	a.orch = orchestrator.New(a.reg,
		orchestrator.WithClock(a.clk),
		orchestrator.WithLogger(log.With(logx.String("comp", "orchestrator"))),
		orchestrator.WithBus(a.bus),
		orchestrator.WithDefaultTimezone(cfg.Scheduler.Timezone),
	)
	registerBuiltins(a.handlers)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// Handlers is the catalog configured jobs resolve their handler from.
// Register custom handlers before Start.
func (a *App) Handlers() *HandlerCatalog { return a.handlers }

// Registry is the dynamic API: units added here are not owned by the host.
func (a *App) Registry() *registry.Registry { return a.reg }

func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return a.handlers.checkHandlers(cfg)
}

// Start declares every configured job, mounts them, and starts the
// background loops. A registration error aborts Start.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(a.validate)

	cfg := a.cfgm.Get()
	if err := a.validate(ctx, cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if err := a.declare(cfg); err != nil {
		return err
	}

	a.startEventLog()
	if err := a.orch.Bootstrap(); err != nil {
		a.orch.Shutdown()
		a.sup.Cancel()
		return errors.Wrap(err, "mount scheduled jobs")
	}
	for ns := range cfg.Namespaces {
		if !cfg.NamespaceEnabled(ns) {
			a.reg.StopAllCronJobs(ns)
			a.log.Info("namespace disabled", logx.String("namespace", ns))
		}
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, 250*time.Millisecond, 30*time.Second)
	a.sup.Go0("systemd.watchdog", systemd.RunWatchdog)

	a.bus.Publish(eventbus.Event{Type: EventStarted, Time: a.clk.Now(), Data: len(cfg.Jobs)})
	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		_, _ = systemd.Status("scheduling")
	}
	logSnapshot(a.log, a.reg)
	a.log.Info("app started", logx.Int("jobs", len(cfg.Jobs)), logx.Any("handlers", a.handlers.Names()))
	return nil
}

// declare buffers every configured job with the orchestrator.
func (a *App) declare(cfg *config.Config) error {
	plans, err := cfg.Plans()
	if err != nil {
		return err
	}
	for _, p := range plans {
		h, _ := a.handlers.Lookup(p.Handler)
		run := &Run{Kind: p.Kind, Registry: a.reg}
		target := func() { h(a.sup.Context(), *run) }

		var name string
		switch p.Kind {
		case config.JobTimeout:
			name = a.orch.AddTimeout(target, p.Every, p.Name)
		case config.JobInterval:
			name = a.orch.AddInterval(target, p.Every, p.Name)
		case config.JobCron:
			if name, err = a.orch.AddCron(target, p.Cron); err != nil {
				return err
			}
		}
		// Nothing fires before Bootstrap, so the generated name can be
		// filled in after the Add.
		run.Name = name
		run.Log = a.log.With(logx.String("job", name), logx.String("kind", string(p.Kind)))
	}
	return nil
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})
}

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig applies the hot-reloadable parts of cfg: logging and
// namespace toggles. Job declarations take effect on the next start.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	prev := a.applied
	a.applied = cfg
	a.mu.Unlock()

	sections, attrs := config.SummarizeChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(logConfig(cfg))

	start, stop := config.NamespaceToggles(prev, cfg)
	for _, ns := range stop {
		a.reg.StopAllCronJobs(ns)
		a.log.Info("namespace disabled", logx.String("namespace", ns))
	}
	for _, ns := range start {
		a.reg.RunAllCronJobs(ns)
		a.log.Info("namespace enabled", logx.String("namespace", ns))
	}
	for _, s := range sections {
		if s == "jobs" || s == "scheduler" {
			a.log.Warn("job declarations changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop clears every unit the host mounted and waits for background loops,
// bounded by ctx. Units added through the Registry directly keep running.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("stopping")
		if _, nerr := systemd.Stopping(); nerr != nil {
			a.log.Warn("systemd notify failed", logx.Err(nerr))
		}
		a.orch.Shutdown()
		err = a.sup.Stop(ctx)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("background loops did not stop in time", logx.Err(err))
		}
		a.log.Info("stopped")
		_ = a.logs.Close()
	})
	return err
}
