package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedkit/internal/config"
	"schedkit/internal/task/job"
	"schedkit/internal/task/registry"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const hostConfig = `
logging: { level: error, console: false }
scheduler: { timezone: UTC }
namespaces:
  reports: { enabled: true }
jobs:
  - { name: tick, kind: interval, every: "10s", handler: record }
  - { kind: timeout, delay: "0s", handler: record }
  - { name: nightly, kind: cron, cron: "0 0 3 * * *", handler: record, namespace: reports, auto_start: true }
  - { name: paused, kind: cron, cron: "@hourly", handler: noop, namespace: reports }
`

func newTestApp(t *testing.T, body string) (*App, clockwork.FakeClock, chan Run) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	clk := clockwork.NewFakeClockAt(epoch)
	a, err := NewApp(path, WithClock(clk))
	require.NoError(t, err)

	runs := make(chan Run, 16)
	require.NoError(t, a.Handlers().Register("record", func(_ context.Context, run Run) { runs <- run }))
	return a, clk, runs
}

func stop(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.NoError(t, a.Stop(ctx))
}

func nextRun(t *testing.T, runs <-chan Run) Run {
	t.Helper()
	select {
	case r := <-runs:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no job ran")
		return Run{}
	}
}

func TestStartMountsConfiguredJobs(t *testing.T) {
	a, clk, runs := newTestApp(t, hostConfig)
	require.NoError(t, a.Start(context.Background()))
	defer stop(t, a)

	reg := a.Registry()
	_, err := reg.GetInterval("tick")
	require.NoError(t, err)
	nightly, err := reg.GetCronJob("nightly")
	require.NoError(t, err)
	assert.True(t, nightly.Running())
	paused, err := reg.GetCronJob("paused")
	require.NoError(t, err)
	assert.False(t, paused.Running())
	assert.ElementsMatch(t, []string{"nightly", "paused"}, reg.CronJobNames("reports"))

	// The unnamed 0s timeout fires right away under a generated name.
	first := nextRun(t, runs)
	assert.Equal(t, config.JobTimeout, first.Kind)
	assert.NotEmpty(t, first.Name)
	_, err = reg.GetTimeout(first.Name)
	assert.NoError(t, err)

	clk.BlockUntil(2) // tick and nightly; paused is stopped and the timeout is spent
	clk.Advance(10 * time.Second)
	r := nextRun(t, runs)
	assert.Equal(t, "tick", r.Name)
	assert.Same(t, reg, r.Registry)
}

func TestStopClearsOnlyOwnedUnits(t *testing.T) {
	a, clk, _ := newTestApp(t, hostConfig)
	require.NoError(t, a.Start(context.Background()))

	dyn, err := job.NewCronJob(clk, job.CronOptions{Spec: "@every 1m"}, func() {})
	require.NoError(t, err)
	require.NoError(t, a.Registry().AddCronJob("dynamic", dyn, ""))
	dyn.Start()

	stop(t, a)
	nightly, err := a.Registry().GetCronJob("nightly")
	require.NoError(t, err)
	assert.False(t, nightly.Running())
	assert.True(t, dyn.Running())
	<-a.Done()

	require.NoError(t, a.Registry().DeleteCronJob("dynamic"))
	assert.False(t, dyn.Running())
}

func TestStartRejectsUnknownHandler(t *testing.T) {
	a, _, _ := newTestApp(t, "jobs:\n  - { name: x, kind: timeout, handler: missing }\n")
	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestStartFailsOnDuplicateName(t *testing.T) {
	a, clk, _ := newTestApp(t, hostConfig)
	// A dynamic registration already holds the name.
	require.NoError(t, a.Registry().AddInterval("tick", job.NewInterval(clk, time.Minute, func() {})))

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateName))
	<-a.Done()
}

func TestNamespaceToggleOnReload(t *testing.T) {
	a, _, _ := newTestApp(t, hostConfig)
	require.NoError(t, a.Start(context.Background()))
	defer stop(t, a)
	reg := a.Registry()

	off := *a.cfgm.Get()
	off.Namespaces = map[string]config.NamespaceConfig{"reports": {Enabled: false}}
	a.applyConfig(&off)
	for _, name := range []string{"nightly", "paused"} {
		h, err := reg.GetCronJob(name)
		require.NoError(t, err)
		assert.False(t, h.Running(), name)
	}

	on := off
	on.Namespaces = map[string]config.NamespaceConfig{"reports": {Enabled: true}}
	a.applyConfig(&on)
	for _, name := range []string{"nightly", "paused"} {
		h, err := reg.GetCronJob(name)
		require.NoError(t, err)
		assert.True(t, h.Running(), name)
	}
}

func TestDisabledNamespaceStaysStoppedAtStart(t *testing.T) {
	body := `
logging: { level: error }
namespaces: { reports: { enabled: false } }
jobs:
  - { name: nightly, kind: cron, cron: "@daily", handler: noop, namespace: reports, auto_start: true }
  - { name: other, kind: cron, cron: "@daily", handler: noop, auto_start: true }
`
	a, _, _ := newTestApp(t, body)
	require.NoError(t, a.Start(context.Background()))
	defer stop(t, a)

	nightly, err := a.Registry().GetCronJob("nightly")
	require.NoError(t, err)
	assert.False(t, nightly.Running())
	other, err := a.Registry().GetCronJob("other")
	require.NoError(t, err)
	assert.True(t, other.Running())
}

func TestHandlerCatalog(t *testing.T) {
	t.Parallel()
	c := NewHandlerCatalog()
	require.NoError(t, c.Register("Echo", noopHandler))
	assert.Error(t, c.Register("echo", noopHandler), "names are case-insensitive")
	assert.Error(t, c.Register(" ", noopHandler))
	assert.Error(t, c.Register("nil", nil))

	_, ok := c.Lookup(" ECHO ")
	assert.True(t, ok)
	assert.Equal(t, []string{"echo"}, c.Names())

	err := c.checkHandlers(&config.Config{Jobs: []config.JobConfig{{Handler: "echo"}, {Handler: "ghost"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - { kind: interval, every: \"0s\", handler: log }\n"), 0o600))
	_, err := NewApp(path)
	assert.Error(t, err)
}
