package polos

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers at the API boundary. Kinds map 1:1
// onto user-visible failure categories; nothing beyond the kind and the
// message leaks across that boundary.
type Kind int

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota
	// KindNotFound means an unknown id, or an id outside the caller's
	// tenant. The two are indistinguishable on purpose.
	KindNotFound
	// KindInvalidArgument means the request can never succeed as given
	// (unregistered workflow, malformed cron expression, bad transition
	// target).
	KindInvalidArgument
	// KindConflict means an optimistic transition lost a race. The caller
	// should retry or treat the work as already handled.
	KindConflict
	// KindUnavailable means storage or a remote worker is transiently
	// unreachable. Retry with backoff.
	KindUnavailable
	// KindInternal means a storage invariant was violated. Logged and
	// surfaced, never swallowed.
	KindInternal
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// kindError is a sentinel error carrying a Kind.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

// Kind returns the error's classification.
func (e *kindError) Kind() Kind { return e.kind }

// NewError creates a classified sentinel error.
func NewError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Errorf creates a classified error with a formatted message. The format
// may wrap another error with %w; the kind of the outer error wins in
// KindOf.
func Errorf(kind Kind, format string, args ...any) error {
	return &wrapError{kind: kind, err: fmt.Errorf(format, args...)}
}

// wrapError carries a Kind around a wrapped error chain.
type wrapError struct {
	kind Kind
	err  error
}

func (e *wrapError) Error() string { return e.err.Error() }
func (e *wrapError) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *wrapError) Kind() Kind { return e.kind }

// kinder is implemented by errors that carry a Kind.
type kinder interface {
	Kind() Kind
}

// KindOf returns the classification of err, walking the wrap chain.
// Returns KindUnknown for nil and unclassified errors.
func KindOf(err error) Kind {
	for err != nil {
		if k, ok := err.(kinder); ok {
			return k.Kind()
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// IsNotFound reports whether err is classified KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is classified KindConflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

var (
	// Not found errors.
	ErrExecutionNotFound    = NewError(KindNotFound, "polos: execution not found")
	ErrWorkerNotFound       = NewError(KindNotFound, "polos: worker not found")
	ErrScheduleNotFound     = NewError(KindNotFound, "polos: schedule not found")
	ErrTopicNotFound        = NewError(KindNotFound, "polos: topic not found")
	ErrStepOutputNotFound   = NewError(KindNotFound, "polos: step output not found")
	ErrDeploymentNotFound   = NewError(KindNotFound, "polos: deployment not found")
	ErrRegistrationNotFound = NewError(KindNotFound, "polos: workflow not registered for deployment")

	// Invalid argument errors.
	ErrNotScheduled   = NewError(KindInvalidArgument, "polos: workflow is not registered as scheduled")
	ErrInvalidCron    = NewError(KindInvalidArgument, "polos: invalid cron expression")
	ErrMissingProject = NewError(KindInvalidArgument, "polos: missing project id")
	ErrPushEndpoint   = NewError(KindInvalidArgument, "polos: push mode requires a push endpoint url")
	ErrAdminRequired  = NewError(KindInvalidArgument, "polos: cross-tenant operation requires an elevated context")

	// Conflict errors.
	ErrInvalidTransition = NewError(KindConflict, "polos: invalid execution state transition")
	ErrAlreadyTerminal   = NewError(KindConflict, "polos: execution already in a terminal state")
	ErrPublishConflict   = NewError(KindConflict, "polos: event publish lost a sequence race, retry")

	// Availability errors.
	ErrNoStore           = NewError(KindUnavailable, "polos: no store configured")
	ErrWorkerUnreachable = NewError(KindUnavailable, "polos: worker push endpoint unreachable")
)
