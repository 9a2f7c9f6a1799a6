package config

import (
	"reflect"
	"sort"
	"strings"

	logx "schedkit/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and structured
// attrs suitable for a single reload log line.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}

	start, stop := NamespaceToggles(oldCfg, newCfg)
	if len(start)+len(stop) > 0 {
		changed = append(changed, "namespaces")
		attrs = append(attrs, logx.Any("namespaces.enabled", start), logx.Any("namespaces.disabled", stop))
	}

	// Job declarations are only read at startup; surface the change so the
	// operator knows a restart is needed.
	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		attrs = append(attrs, logx.Int("jobs.count", len(newCfg.Jobs)), logx.Bool("jobs.restart_required", true))
	}

	return changed, attrs
}

// NamespaceToggles returns the namespaces that became enabled (start) and
// disabled (stop) between two configs, sorted by name.
func NamespaceToggles(oldCfg, newCfg *Config) (start, stop []string) {
	names := map[string]struct{}{}
	if oldCfg != nil {
		for ns := range oldCfg.Namespaces {
			names[ns] = struct{}{}
		}
	}
	if newCfg != nil {
		for ns := range newCfg.Namespaces {
			names[ns] = struct{}{}
		}
	}
	for ns := range names {
		was, is := oldCfg.NamespaceEnabled(ns), newCfg.NamespaceEnabled(ns)
		switch {
		case !was && is:
			start = append(start, ns)
		case was && !is:
			stop = append(stop, ns)
		}
	}
	sort.Strings(start)
	sort.Strings(stop)
	return start, stop
}
