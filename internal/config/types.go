package config

// Config is the host configuration. It is decoded strictly: unknown keys are
// rejected so typos surface on load and on hot reload.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Namespaces toggles cron namespaces as a group. A namespace that is not
	// listed is enabled.
	Namespaces map[string]NamespaceConfig `json:"namespaces,omitempty"`

	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig holds scheduler-wide defaults.
type SchedulerConfig struct {
	// Timezone applies to cron jobs that set neither timezone nor utc_offset.
	Timezone string `json:"timezone,omitempty"`
}

type NamespaceConfig struct {
	Enabled bool `json:"enabled"`
}

type JobKind string

const (
	JobTimeout  JobKind = "timeout"
	JobInterval JobKind = "interval"
	JobCron     JobKind = "cron"
)

// JobConfig declares one static job.
//
// Either Kind with its matching field (delay, every, cron or at) is set, or
// Schedule alone, in which case the kind is inferred:
//
//	schedule: "cron:0 */5 * * * *"   # cron
//	schedule: "every:30s"            # interval
//	schedule: "at:2030-01-01T00:00:00Z"
type JobConfig struct {
	Name     string  `json:"name"`
	Kind     JobKind `json:"kind,omitempty"`
	Schedule string  `json:"schedule,omitempty"`

	// Go duration or HH:MM.
	Delay string `json:"delay,omitempty"`
	Every string `json:"every,omitempty"`

	Cron string `json:"cron,omitempty"`
	At   string `json:"at,omitempty"` // RFC3339

	Handler   string `json:"handler"`
	Namespace string `json:"namespace,omitempty"`
	AutoStart bool   `json:"auto_start,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	UTCOffset string `json:"utc_offset,omitempty"`
	Unref     bool   `json:"unref,omitempty"`
}

// NamespaceEnabled reports whether ns is enabled. Unlisted namespaces are.
func (c *Config) NamespaceEnabled(ns string) bool {
	if c == nil || c.Namespaces == nil {
		return true
	}
	n, ok := c.Namespaces[ns]
	return !ok || n.Enabled
}
