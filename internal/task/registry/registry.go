package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultNamespace is used when a cron job is added or bulk-controlled
// without an explicit namespace.
const DefaultNamespace = "global"

// TimerHandle is a live timeout or interval.
type TimerHandle interface {
	Cancel()
}

// CronHandle is a live cron job.
type CronHandle interface {
	Start()
	Stop()
	Running() bool
	LastDate() time.Time
}

// Registry maps names to live handles for timeouts, intervals and cron jobs,
// and cron job names to their namespace.
//
// The Registry never creates or arms work; it stores handles built elsewhere.
// It is safe for concurrent use. Handles must not call back into the Registry
// from Start, Stop or Cancel.
type Registry struct {
	mu sync.RWMutex

	cronJobs       map[string]CronHandle
	cronNamespaces map[string]string
	timeouts       map[string]TimerHandle
	intervals      map[string]TimerHandle
}

func New() *Registry {
	return &Registry{
		cronJobs:       map[string]CronHandle{},
		cronNamespaces: map[string]string{},
		timeouts:       map[string]TimerHandle{},
		intervals:      map[string]TimerHandle{},
	}
}

func namespaceOrDefault(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// ---- Cron jobs ----

// AddCronJob stores job under name in namespace ("" means DefaultNamespace).
func (r *Registry) AddCronJob(name string, job CronHandle, namespace string) error {
	if job == nil {
		return errors.AssertionFailedf("registry: nil cron job handle for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cronJobs[name]; ok {
		return duplicate(KindCron, name)
	}
	r.cronJobs[name] = job
	r.cronNamespaces[name] = namespaceOrDefault(namespace)
	return nil
}

func (r *Registry) GetCronJob(name string) (CronHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.cronJobs[name]
	if !ok {
		return nil, notFound(KindCron, name)
	}
	return job, nil
}

// CronNamespace returns the namespace name was registered under.
func (r *Registry) CronNamespace(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.cronNamespaces[name]
	if !ok {
		return "", notFound(KindCron, name)
	}
	return ns, nil
}

// CronJobs returns a snapshot of every cron job keyed by name.
func (r *Registry) CronJobs() map[string]CronHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CronHandle, len(r.cronJobs))
	for name, job := range r.cronJobs {
		out[name] = job
	}
	return out
}

// CronJobNames returns the names registered under namespace, in no particular order.
func (r *Registry) CronJobNames(namespace string) []string {
	ns := namespaceOrDefault(namespace)
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cronNamespaces))
	for name, v := range r.cronNamespaces {
		if v == ns {
			names = append(names, name)
		}
	}
	return names
}

// RunAllCronJobs starts every cron job in namespace; others are untouched.
func (r *Registry) RunAllCronJobs(namespace string) {
	for _, job := range r.cronJobsIn(namespace) {
		job.Start()
	}
}

// StopAllCronJobs stops every cron job in namespace; others are untouched.
func (r *Registry) StopAllCronJobs(namespace string) {
	for _, job := range r.cronJobsIn(namespace) {
		job.Stop()
	}
}

func (r *Registry) cronJobsIn(namespace string) []CronHandle {
	ns := namespaceOrDefault(namespace)
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]CronHandle, 0, len(r.cronJobs))
	for name, job := range r.cronJobs {
		if r.cronNamespaces[name] == ns {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// DeleteCronJob stops the job, then forgets it and its namespace.
func (r *Registry) DeleteCronJob(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.cronJobs[name]
	if !ok {
		return notFound(KindCron, name)
	}
	job.Stop()
	delete(r.cronJobs, name)
	delete(r.cronNamespaces, name)
	return nil
}

// ---- Intervals ----

func (r *Registry) AddInterval(name string, h TimerHandle) error {
	return r.addTimer(r.intervals, KindInterval, name, h)
}

func (r *Registry) GetInterval(name string) (TimerHandle, error) {
	return r.getTimer(r.intervals, KindInterval, name)
}

// Intervals returns every interval name, in no particular order.
func (r *Registry) Intervals() []string { return r.timerNames(r.intervals) }

// DeleteInterval cancels the interval, then forgets it.
func (r *Registry) DeleteInterval(name string) error {
	return r.deleteTimer(r.intervals, KindInterval, name)
}

// ---- Timeouts ----

func (r *Registry) AddTimeout(name string, h TimerHandle) error {
	return r.addTimer(r.timeouts, KindTimeout, name, h)
}

func (r *Registry) GetTimeout(name string) (TimerHandle, error) {
	return r.getTimer(r.timeouts, KindTimeout, name)
}

// Timeouts returns every timeout name, in no particular order.
func (r *Registry) Timeouts() []string { return r.timerNames(r.timeouts) }

// DeleteTimeout cancels the timeout, then forgets it.
func (r *Registry) DeleteTimeout(name string) error {
	return r.deleteTimer(r.timeouts, KindTimeout, name)
}

// ---- shared timer bookkeeping ----

func (r *Registry) addTimer(m map[string]TimerHandle, kind Kind, name string, h TimerHandle) error {
	if h == nil {
		return errors.AssertionFailedf("registry: nil %s handle for %q", kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := m[name]; ok {
		return duplicate(kind, name)
	}
	m[name] = h
	return nil
}

func (r *Registry) getTimer(m map[string]TimerHandle, kind Kind, name string) (TimerHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := m[name]
	if !ok {
		return nil, notFound(kind, name)
	}
	return h, nil
}

func (r *Registry) timerNames(m map[string]TimerHandle) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

func (r *Registry) deleteTimer(m map[string]TimerHandle, kind Kind, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := m[name]
	if !ok {
		return notFound(kind, name)
	}
	h.Cancel()
	delete(m, name)
	return nil
}
