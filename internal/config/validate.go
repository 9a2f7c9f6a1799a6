package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	logx "schedkit/pkg/logx"
)

// Validate checks everything that can be checked without the host: log
// level, default time zone, every job declaration, and name clashes within a
// kind. Handler names are checked by the host against its catalog.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return errors.Newf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Wrapf(err, "scheduler.timezone")
		}
	}
	for ns := range cfg.Namespaces {
		if strings.TrimSpace(ns) == "" {
			return errors.New("namespaces: empty namespace name")
		}
	}

	plans, err := cfg.Plans()
	if err != nil {
		return err
	}
	seen := map[JobKind]map[string]bool{}
	for _, p := range plans {
		if p.Name == "" {
			continue
		}
		if seen[p.Kind] == nil {
			seen[p.Kind] = map[string]bool{}
		}
		if seen[p.Kind][p.Name] {
			return errors.WithHint(
				errors.Newf("jobs: duplicate %s name %q", p.Kind, p.Name),
				"names must be unique per kind; leave name empty to get a generated one")
		}
		seen[p.Kind][p.Name] = true
	}
	return nil
}
