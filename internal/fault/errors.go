// Package fault defines the error taxonomy shared by the runtime layer.
//
// Every failure the driver reports carries one of five kinds:
//
//   - [CapabilityUnsupported]: a required host feature is missing
//   - [LoadFailure]: the compute module image could not be fetched or validated
//   - [NotInitialized]: an operation ran before the worker pool was set up
//   - [StepFailure]: the solver reported an error while stepping
//   - [SurfaceInvalid]: the bound rendering surface became unusable
//
// Callers match kinds with errors.Is against the exported sentinels, which
// works through any amount of fmt.Errorf wrapping.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure.
type Kind string

const (
	CapabilityUnsupported Kind = "capability_unsupported"
	LoadFailure           Kind = "load_failure"
	NotInitialized        Kind = "not_initialized"
	StepFailure           Kind = "step_failure"
	SurfaceInvalid        Kind = "surface_invalid"
)

// Sentinels for errors.Is matching.
var (
	ErrCapabilityUnsupported = &Error{Kind: CapabilityUnsupported}
	ErrLoadFailure           = &Error{Kind: LoadFailure}
	ErrNotInitialized        = &Error{Kind: NotInitialized}
	ErrStepFailure           = &Error{Kind: StepFailure}
	ErrSurfaceInvalid        = &Error{Kind: SurfaceInvalid}
)

// Error wraps a cause with its kind and the operation that failed.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a fault of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds a fault of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a fault with a formatted detail message and no cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first fault in err's chain, or "" if none.
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Fatal reports whether err should terminate the whole run rather than a
// single scheduler instance.
func Fatal(err error) bool {
	switch KindOf(err) {
	case CapabilityUnsupported, LoadFailure, NotInitialized:
		return true
	}
	return false
}
