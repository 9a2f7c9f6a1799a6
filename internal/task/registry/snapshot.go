package registry

import (
	"sort"
	"time"
)

// ScheduleInfo is a point-in-time view of one registered unit.
type ScheduleInfo struct {
	Kind      Kind
	Name      string
	Namespace string // cron only
	Spec      string // cron only, when the handle exposes it
	Running   bool
	Last      time.Time
	Next      time.Time
}

// Optional capabilities a handle may expose for Snapshot.
type (
	nextDater interface{ NextDate() time.Time }
	specer    interface{ Spec() string }
	activer   interface{ Active() bool }
)

// Snapshot returns every registered unit, sorted by kind then name.
//
// Intended for logging and debug output, not for synchronization.
func (r *Registry) Snapshot() []ScheduleInfo {
	r.mu.RLock()
	items := make([]ScheduleInfo, 0, len(r.cronJobs)+len(r.intervals)+len(r.timeouts))
	for name, job := range r.cronJobs {
		it := ScheduleInfo{Kind: KindCron, Name: name, Namespace: r.cronNamespaces[name]}
		it.Running = job.Running()
		it.Last = job.LastDate()
		if nd, ok := job.(nextDater); ok {
			it.Next = nd.NextDate()
		}
		if sp, ok := job.(specer); ok {
			it.Spec = sp.Spec()
		}
		items = append(items, it)
	}
	for name, h := range r.intervals {
		items = append(items, timerInfo(KindInterval, name, h))
	}
	for name, h := range r.timeouts {
		items = append(items, timerInfo(KindTimeout, name, h))
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].Name < items[j].Name
	})
	return items
}

func timerInfo(kind Kind, name string, h TimerHandle) ScheduleInfo {
	it := ScheduleInfo{Kind: kind, Name: name, Running: true}
	if a, ok := h.(activer); ok {
		it.Running = a.Active()
	}
	return it
}
