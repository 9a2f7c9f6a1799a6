package job

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// DefaultNamespace is the namespace cron jobs land in when none is given.
const DefaultNamespace = "global"

// CronOptions describes a cron unit before it is materialized.
//
// Exactly one of Spec and At must be set. TimeZone and UTCOffset are mutually
// exclusive; with neither set, the job runs in the clock's local time.
type CronOptions struct {
	// Name is optional; a unique one is generated at registration when empty.
	Name string

	// Spec is a cron expression: 5 or 6 fields (leading seconds optional),
	// or a descriptor like "@hourly" / "@every 5m".
	Spec string
	// At fires the job once at a fixed instant.
	At time.Time

	// TimeZone is an IANA zone name, e.g. "Asia/Jakarta".
	TimeZone string
	// UTCOffset is a fixed offset: "+02:00", "-0530" or minutes ("120").
	UTCOffset string

	// Unref marks the job as not holding the host open. It is recorded and
	// reported but has no effect on process lifetime.
	Unref     bool
	AutoStart bool
	Namespace string
}

// cronParser accepts both 5-field and 6-field (with seconds) specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NamespaceOrDefault returns o.Namespace, or DefaultNamespace when blank.
func (o CronOptions) NamespaceOrDefault() string {
	ns := strings.TrimSpace(o.Namespace)
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// Validate checks the descriptor without building a job.
func (o CronOptions) Validate() error {
	_, _, err := o.compile()
	return err
}

// compile resolves the schedule and the location it is evaluated in.
func (o CronOptions) compile() (cron.Schedule, *time.Location, error) {
	spec := strings.TrimSpace(o.Spec)
	switch {
	case spec == "" && o.At.IsZero():
		return nil, nil, errors.New("cron: spec or at required")
	case spec != "" && !o.At.IsZero():
		return nil, nil, errors.New("cron: spec and at are mutually exclusive")
	}

	loc, err := o.location()
	if err != nil {
		return nil, nil, err
	}

	if spec == "" {
		return fixedSchedule{at: o.At}, loc, nil
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cron: invalid spec %q", spec)
	}
	return sched, loc, nil
}

func (o CronOptions) location() (*time.Location, error) {
	tz := strings.TrimSpace(o.TimeZone)
	off := strings.TrimSpace(o.UTCOffset)
	if tz != "" && off != "" {
		return nil, errors.New("cron: time zone and utc offset are mutually exclusive")
	}
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, errors.Wrapf(err, "cron: invalid time zone %q", tz)
		}
		return loc, nil
	}
	if off != "" {
		d, err := ParseUTCOffset(off)
		if err != nil {
			return nil, err
		}
		return time.FixedZone(formatOffset(d), int(d/time.Second)), nil
	}
	return time.Local, nil
}

// ParseUTCOffset parses a fixed UTC offset.
//
// Signed clock forms ("+HH:MM", "-HHMM", "+HH") are tried first; anything
// else must be a signed minute count ("120", "-330").
func ParseUTCOffset(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("utc offset required")
	}
	if d, ok := parseClockOffset(s); ok {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf("invalid utc offset %q (use +HH:MM or minutes)", raw)
	}
	if n < -14*60 || n > 14*60 {
		return 0, errors.Newf("utc offset %q out of range", raw)
	}
	return time.Duration(n) * time.Minute, nil
}

func parseClockOffset(s string) (time.Duration, bool) {
	sign := time.Duration(1)
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}
	digits := strings.Replace(s[1:], ":", "", 1)
	var hh, mm int
	var err error
	switch len(digits) {
	case 2:
		hh, err = strconv.Atoi(digits)
	case 4:
		hh, err = strconv.Atoi(digits[:2])
		if err == nil {
			mm, err = strconv.Atoi(digits[2:])
		}
	default:
		return 0, false
	}
	if err != nil || hh > 14 || mm > 59 {
		return 0, false
	}
	return sign * (time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute), true
}

func formatOffset(d time.Duration) string {
	sign := '+'
	if d < 0 {
		sign = '-'
		d = -d
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%c%02d:%02d", sign, h, m)
}

// fixedSchedule fires once at a fixed instant.
type fixedSchedule struct {
	at time.Time
}

func (s fixedSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
