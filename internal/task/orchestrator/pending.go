package orchestrator

import (
	"time"

	"schedkit/internal/task/job"
)

// Target is the unit of work a scheduled entry invokes.
type Target func()

type pendingTimer struct {
	target Target
	d      time.Duration
	ref    *job.Timer // set once mounted
}

type pendingCron struct {
	target Target
	opts   job.CronOptions
	ref    *job.CronJob // set once mounted
}

// buffer keeps pending entries by name in insertion order. Re-putting an
// existing name replaces the entry but keeps its position.
type buffer[T any] struct {
	order []string
	items map[string]*T
}

func newBuffer[T any]() buffer[T] {
	return buffer[T]{items: map[string]*T{}}
}

func (b *buffer[T]) put(name string, item *T) {
	if _, ok := b.items[name]; !ok {
		b.order = append(b.order, name)
	}
	b.items[name] = item
}

// each visits entries in insertion order and stops at the first error.
func (b *buffer[T]) each(fn func(name string, item *T) error) error {
	for _, name := range b.order {
		if err := fn(name, b.items[name]); err != nil {
			return err
		}
	}
	return nil
}

func (b *buffer[T]) names() []string {
	return append([]string(nil), b.order...)
}
