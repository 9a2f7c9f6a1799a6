package registry

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind names a namespace of scheduled work.
type Kind string

const (
	KindCron     Kind = "Cron Job"
	KindInterval Kind = "Interval"
	KindTimeout  Kind = "Timeout"
)

// Sentinels for errors.Is.
var (
	ErrDuplicateName = errors.New("duplicate scheduler name")
	ErrNotFound      = errors.New("scheduler not found")
)

// DuplicateNameError is returned when a name already holds a handle of Kind.
type DuplicateNameError struct {
	Kind Kind
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s with the given name (%s) already exists. Ignored.", e.Kind, e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// NotFoundError is returned when no handle of Kind exists under Name.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No %s was found with the given name (%s). %s", e.Kind, e.Name, e.hint())
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) hint() string {
	return fmt.Sprintf("Check that you registered one with a static job declaration or through the dynamic %s API.", e.Kind)
}

func duplicate(kind Kind, name string) error {
	return errors.WithStack(&DuplicateNameError{Kind: kind, Name: name})
}

func notFound(kind Kind, name string) error {
	e := &NotFoundError{Kind: kind, Name: name}
	return errors.WithHint(errors.WithStack(e), e.hint())
}
