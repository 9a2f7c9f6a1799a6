package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  timezone: UTC
namespaces:
  reports: { enabled: false }
jobs:
  - { name: heartbeat, kind: interval, every: "30s", handler: log }
  - { name: warmup, kind: timeout, delay: "00:05", handler: log }
  - name: nightly
    kind: cron
    cron: "0 0 3 * * *"
    handler: log
    namespace: reports
    auto_start: true
    utc_offset: "+02:00"
  - { schedule: "every:1m", handler: log }
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "schedkit.yaml", sampleYAML))
	cfg, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.False(t, cfg.NamespaceEnabled("reports"))
	assert.True(t, cfg.NamespaceEnabled("global"))
	require.Len(t, cfg.Jobs, 4)

	plans, err := cfg.Plans()
	require.NoError(t, err)
	assert.Equal(t, JobInterval, plans[0].Kind)
	assert.Equal(t, 30*time.Second, plans[0].Every)
	assert.Equal(t, JobTimeout, plans[1].Kind)
	assert.Equal(t, 5*time.Minute, plans[1].Every)
	assert.Equal(t, JobCron, plans[2].Kind)
	assert.Equal(t, "0 0 3 * * *", plans[2].Cron.Spec)
	assert.Equal(t, "reports", plans[2].Cron.Namespace)
	assert.True(t, plans[2].Cron.AutoStart)
	assert.Equal(t, JobInterval, plans[3].Kind)
	assert.Equal(t, time.Minute, plans[3].Every)
	assert.Empty(t, plans[3].Name)
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "schedkit.json",
		`{"logging":{"level":"info"},"jobs":[{"name":"x","kind":"timeout","handler":"log"}]}`))
	cfg, err := m.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, JobTimeout, cfg.Jobs[0].Kind)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]struct{ name, body string }{
		"unknown field": {"c.yaml", "logging: { level: info }\nbogus: 1\n"},
		"trailing data": {"c.json", `{"jobs":[]} {"jobs":[]}`},
		"bad yaml":      {"c.yml", "jobs: [\n"},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConfigManager(writeFile(t, tc.name, tc.body)).Parse()
			assert.Error(t, err)
		})
	}

	_, err := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml")).Parse()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := func() *Config {
		return &Config{Jobs: []JobConfig{{Name: "a", Kind: JobTimeout, Handler: "h"}}}
	}
	require.NoError(t, Validate(ok()))

	cases := map[string]func(c *Config){
		"log level":     func(c *Config) { c.Logging.Level = "loud" },
		"timezone":      func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"empty ns":      func(c *Config) { c.Namespaces = map[string]NamespaceConfig{" ": {}} },
		"no handler":    func(c *Config) { c.Jobs[0].Handler = "" },
		"duplicate":     func(c *Config) { c.Jobs = append(c.Jobs, c.Jobs[0]) },
		"unknown kind":  func(c *Config) { c.Jobs[0].Kind = "weekly" },
		"negative":      func(c *Config) { c.Jobs[0].Delay = "-1s" },
		"zero interval": func(c *Config) { c.Jobs[0].Kind = JobInterval },
		"cron spec":     func(c *Config) { c.Jobs[0].Kind, c.Jobs[0].Cron = JobCron, "61 * * * *" },
		"cron both":     func(c *Config) { c.Jobs[0].Kind, c.Jobs[0].Cron, c.Jobs[0].At = JobCron, "@hourly", "2030-01-01T00:00:00Z" },
		"cron zones":    func(c *Config) { c.Jobs[0].Kind, c.Jobs[0].Cron, c.Jobs[0].Timezone, c.Jobs[0].UTCOffset = JobCron, "@hourly", "UTC", "+01:00" },
		"mixed":         func(c *Config) { c.Jobs[0].Schedule = "every:1m" },
		"no kind":       func(c *Config) { c.Jobs[0].Kind = "" },
	}
	for name, mutate := range cases {
		c := ok()
		mutate(c)
		assert.Error(t, Validate(c), name)
	}

	// Same name across kinds is fine.
	c := ok()
	c.Jobs = append(c.Jobs, JobConfig{Name: "a", Kind: JobInterval, Every: "1s", Handler: "h"})
	assert.NoError(t, Validate(c))
}

func TestResolveFixedDate(t *testing.T) {
	t.Parallel()
	p, err := JobConfig{Name: "once", Kind: JobCron, At: "2030-01-01T00:00:00Z", Handler: "h"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), p.Cron.At)

	p, err = JobConfig{Schedule: "at:2030-01-01T00:00:00Z", Handler: "h", Namespace: "ops"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, JobCron, p.Kind)
	assert.False(t, p.Cron.At.IsZero())
	assert.Equal(t, "ops", p.Cron.Namespace)
}

func TestReloadPublishesChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.yaml", "jobs: []\n")
	m := NewConfigManager(path)
	_, err := m.Load(context.Background())
	require.NoError(t, err)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	_, err = m.Reload(context.Background())
	assert.True(t, errors.Is(err, ErrUnchanged))

	require.NoError(t, os.WriteFile(path, []byte("namespaces: { reports: { enabled: false } }\njobs: []\n"), 0o600))
	cfg, err := m.Reload(context.Background())
	require.NoError(t, err)
	select {
	case got := <-sub:
		assert.Same(t, cfg, got)
	default:
		t.Fatal("reload did not publish")
	}

	// Invalid content is rejected and the committed config is kept.
	require.NoError(t, os.WriteFile(path, []byte("logging: { level: loud }\njobs: []\n"), 0o600))
	_, err = m.Reload(context.Background())
	assert.Error(t, err)
	assert.Same(t, cfg, m.Get())
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.yaml")
	sub := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-sub)

	m.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
	m.publish(a) // no subscribers left
}

func TestNamespaceToggles(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Namespaces: map[string]NamespaceConfig{
		"a": {Enabled: true}, "b": {Enabled: false}, "c": {Enabled: false},
	}}
	newCfg := &Config{Namespaces: map[string]NamespaceConfig{
		"a": {Enabled: false}, "b": {Enabled: true}, "d": {Enabled: false},
	}}
	start, stop := NamespaceToggles(oldCfg, newCfg)
	assert.Equal(t, []string{"b", "c"}, start) // c is unlisted now, so enabled
	assert.Equal(t, []string{"a", "d"}, stop)

	changed, _ := SummarizeChange(oldCfg, newCfg)
	assert.Equal(t, []string{"namespaces"}, changed)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "c.yaml", "jobs: []\n")
	m := NewConfigManager(path)
	_, err := m.Load(context.Background())
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Keep writing until the watcher is up and picks a change.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		body := "scheduler: { timezone: UTC }\njobs: []\n"
		if i%2 == 1 {
			body = "scheduler: { timezone: Etc/GMT }\njobs: []\n"
		}
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		select {
		case cfg := <-sub:
			assert.NotEmpty(t, cfg.Scheduler.Timezone)
			return
		case <-time.After(400 * time.Millisecond):
		case <-deadline:
			t.Fatal("watcher never published")
		}
	}
}
