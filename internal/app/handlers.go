package app

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"schedkit/internal/config"
	"schedkit/internal/task/registry"
	logx "schedkit/pkg/logx"
)

// Run describes one invocation of a configured job.
type Run struct {
	Name     string
	Kind     config.JobKind
	Log      logx.Logger
	Registry *registry.Registry
}

// Handler is the work a configured job performs. ctx is done when the host
// stops.
type Handler func(ctx context.Context, run Run)

// HandlerCatalog maps the handler names used in config to code. It is how
// declared jobs find their targets.
type HandlerCatalog struct {
	mu sync.RWMutex
	m  map[string]Handler
}

func NewHandlerCatalog() *HandlerCatalog {
	return &HandlerCatalog{m: map[string]Handler{}}
}

// Register adds h under name. Names are case-insensitive and unique.
func (c *HandlerCatalog) Register(name string, h Handler) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.New("handler name required")
	}
	if h == nil {
		return errors.Newf("handler %q is nil", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; ok {
		return errors.Newf("handler %q already registered", key)
	}
	c.m[key] = h
	return nil
}

func (c *HandlerCatalog) Lookup(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.m[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

func (c *HandlerCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.m))
	for k := range c.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// checkHandlers reports jobs whose handler is not in the catalog.
func (c *HandlerCatalog) checkHandlers(cfg *config.Config) error {
	var missing []string
	for _, j := range cfg.Jobs {
		if _, ok := c.Lookup(j.Handler); !ok {
			missing = append(missing, j.Handler)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.WithHint(
		errors.Newf("jobs reference unknown handlers: %s", strings.Join(missing, ", ")),
		"available handlers: "+strings.Join(c.Names(), ", "))
}

// Built-in handlers.

func logHandler(_ context.Context, run Run) {
	run.Log.Info("job fired")
}

func noopHandler(context.Context, Run) {}

// snapshotHandler logs every registered unit.
func snapshotHandler(_ context.Context, run Run) {
	logSnapshot(run.Log, run.Registry)
}

func registerBuiltins(c *HandlerCatalog) {
	_ = c.Register("log", logHandler)
	_ = c.Register("noop", noopHandler)
	_ = c.Register("snapshot", snapshotHandler)
}

func logSnapshot(log logx.Logger, reg *registry.Registry) {
	items := reg.Snapshot()
	log.Info("schedule snapshot", logx.Int("units", len(items)))
	for _, it := range items {
		fields := []logx.Field{
			logx.String("kind", string(it.Kind)),
			logx.String("name", it.Name),
			logx.Bool("running", it.Running),
		}
		if it.Namespace != "" {
			fields = append(fields, logx.String("namespace", it.Namespace))
		}
		if it.Spec != "" {
			fields = append(fields, logx.String("spec", it.Spec))
		}
		if !it.Last.IsZero() {
			fields = append(fields, logx.Time("last", it.Last))
		}
		if !it.Next.IsZero() {
			fields = append(fields, logx.Time("next", it.Next))
		}
		log.Debug("scheduled unit", fields...)
	}
}
