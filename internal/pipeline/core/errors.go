package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a stage carries exactly one of these,
// so callers branch with errors.Is(err, core.ErrTimeout) and friends.
var (
	// ErrInvalidInput indicates a precondition on the arguments failed
	// (empty lists, missing required fields).
	ErrInvalidInput = errors.New("invalid input")

	// ErrPreconditionViolation indicates a stage was invoked on data that
	// does not meet its entry contract.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrGeneration indicates the generation backend returned nothing usable.
	ErrGeneration = errors.New("generation error")

	// ErrTimeout indicates the render poll bound was exceeded.
	ErrTimeout = errors.New("timeout")

	// ErrExternalProcess indicates the concatenation process failed.
	ErrExternalProcess = errors.New("external process error")

	// ErrUploadFailed indicates the platform rejected the publish.
	ErrUploadFailed = errors.New("upload failed")

	// ErrNoWinnerSelected indicates the scored batch has no single winner.
	ErrNoWinnerSelected = errors.New("no winner selected")
)

var kinds = []error{
	ErrInvalidInput,
	ErrPreconditionViolation,
	ErrGeneration,
	ErrTimeout,
	ErrExternalProcess,
	ErrUploadFailed,
	ErrNoWinnerSelected,
}

// Error is a typed pipeline error.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	// Op names the component that failed (e.g. "stitch").
	Op string
	// Msg is a human-readable description.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf creates a typed error of the given kind.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error of the given kind around a cause.
func Wrap(kind error, op string, err error, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind sentinel carried by err, or nil if err is untyped.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// StageError wraps an error with the name of the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
