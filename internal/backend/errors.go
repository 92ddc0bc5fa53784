package backend

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies how a backend call ended.
type Kind int

const (
	// KindError is any failure reported by the provider or transport.
	KindError Kind = iota
	// KindTimeout means the attempt or request deadline fired first.
	KindTimeout
	// KindCanceled means the caller abandoned the attempt. It says nothing
	// about backend health.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var (
	// ErrTimeout matches errors of KindTimeout.
	ErrTimeout = errors.New("backend timeout")
	// ErrCanceled matches errors of KindCanceled.
	ErrCanceled = errors.New("backend call abandoned")
)

// Error is a classified failure of one backend call attempt.
type Error struct {
	Backend string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

// Recordable reports whether the failure should count against the backend's
// health. Abandoned calls do not.
func (e *Error) Recordable() bool {
	return e.Kind != KindCanceled
}

// Classify turns the error of an attempt into an *Error.
//
// parent is the caller's context, attempt the per-attempt context derived
// from it. A parent canceled outright means the caller walked away and the
// attempt is KindCanceled. A parent or attempt that ran out of time is
// KindTimeout: the backend did not answer within the time it was given.
// Anything else is KindError.
func Classify(parent, attempt context.Context, backendID string, err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) && classified.Kind != KindError {
		return classified
	}

	kind := KindError
	switch {
	case parent.Err() != nil && !errors.Is(context.Cause(parent), context.DeadlineExceeded):
		kind = KindCanceled
	case parent.Err() != nil,
		errors.Is(attempt.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}

	return &Error{Backend: backendID, Kind: kind, Err: err}
}
