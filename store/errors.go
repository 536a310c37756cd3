package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrValidation  = errors.New("validation failure")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence failure")
)

// Failure is the typed result of an operation that did not complete. Kind is
// one of the sentinels above; Err holds the underlying cause, if any.
type Failure struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Op != "" {
		b.WriteString(f.Op)
		b.WriteString(": ")
	}
	b.WriteString(f.Kind.Error())
	if f.Msg != "" {
		b.WriteString(": ")
		b.WriteString(f.Msg)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports whether target is the failure's kind.
func (f *Failure) Is(target error) bool { return target == f.Kind }

// KindOf returns the failure kind of err, or nil when err is not a Failure.
func KindOf(err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return nil
}

func Validation(op, format string, args ...any) *Failure {
	return &Failure{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) *Failure {
	return &Failure{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...any) *Failure {
	return &Failure{Kind: ErrConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// classify turns a driver error into a Failure. Failures pass through
// untouched; unique-constraint violations are conflicts and everything else
// the store rejects is a persistence failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return &Failure{Kind: ErrConflict, Op: op, Msg: "unique constraint violated", Err: err}
	}
	return &Failure{Kind: ErrPersistence, Op: op, Err: err}
}
