package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"schedkit/internal/task/job"
)

// Plan is a job declaration resolved into what the orchestrator needs.
type Plan struct {
	Kind    JobKind
	Name    string
	Handler string

	// Delay or period for timeouts and intervals.
	Every time.Duration
	// Cron options for cron jobs.
	Cron job.CronOptions
}

// Resolve validates j and turns it into a Plan.
func (j JobConfig) Resolve() (Plan, error) {
	p := Plan{
		Kind:    j.Kind,
		Name:    strings.TrimSpace(j.Name),
		Handler: strings.TrimSpace(j.Handler),
	}
	if p.Handler == "" {
		return Plan{}, errors.New("handler required")
	}

	if s := strings.TrimSpace(j.Schedule); s != "" {
		if j.Kind != "" || j.Delay != "" || j.Every != "" || j.Cron != "" || j.At != "" {
			return Plan{}, errors.New("schedule cannot be combined with kind, delay, every, cron or at")
		}
		ps, err := job.ParseSchedule(s)
		if err != nil {
			return Plan{}, errors.Wrap(err, "schedule")
		}
		switch ps.Kind {
		case job.SpecInterval:
			p.Kind = JobInterval
			p.Every = ps.Every
			return p, nil
		case job.SpecAt:
			p.Kind = JobCron
			p.Cron = j.cronOptions(p.Name)
			p.Cron.At = ps.At
		default:
			p.Kind = JobCron
			p.Cron = j.cronOptions(p.Name)
			p.Cron.Spec = ps.Cron
		}
		if err := p.Cron.Validate(); err != nil {
			return Plan{}, err
		}
		return p, nil
	}

	switch j.Kind {
	case JobTimeout:
		// An omitted delay fires on the next tick.
		if strings.TrimSpace(j.Delay) != "" {
			d, err := job.ParseEvery(j.Delay)
			if err != nil {
				return Plan{}, errors.Wrap(err, "delay")
			}
			p.Every = d
		}
	case JobInterval:
		d, err := job.ParseEvery(j.Every)
		if err != nil {
			return Plan{}, errors.Wrap(err, "every")
		}
		if d <= 0 {
			return Plan{}, errors.New("every must be > 0")
		}
		p.Every = d
	case JobCron:
		p.Cron = j.cronOptions(p.Name)
		p.Cron.Spec = strings.TrimSpace(j.Cron)
		if at := strings.TrimSpace(j.At); at != "" {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return Plan{}, errors.Wrap(err, "at")
			}
			p.Cron.At = t
		}
		if err := p.Cron.Validate(); err != nil {
			return Plan{}, err
		}
	case "":
		return Plan{}, errors.New("kind or schedule required")
	default:
		return Plan{}, errors.Newf("unknown kind %q", j.Kind)
	}
	return p, nil
}

func (j JobConfig) cronOptions(name string) job.CronOptions {
	return job.CronOptions{
		Name:      name,
		TimeZone:  strings.TrimSpace(j.Timezone),
		UTCOffset: strings.TrimSpace(j.UTCOffset),
		Unref:     j.Unref,
		AutoStart: j.AutoStart,
		Namespace: strings.TrimSpace(j.Namespace),
	}
}

// Plans resolves every job in order. The first failure is returned with the
// job's index and name.
func (c *Config) Plans() ([]Plan, error) {
	out := make([]Plan, 0, len(c.Jobs))
	for i, j := range c.Jobs {
		p, err := j.Resolve()
		if err != nil {
			return nil, errors.Wrapf(err, "jobs[%d] (%s)", i, j.Name)
		}
		out = append(out, p)
	}
	return out, nil
}
