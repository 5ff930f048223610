package rpcsession

import (
	"errors"
	"fmt"
)

// Kind classifies a Status the way the original implementation's status_t
// constants do. See spec.md §7 for the full error-handling table.
type Kind int

const (
	// KindOK is not used as a Kind on an error value; it exists so the
	// zero Kind reads as "no error" in logs and switches.
	KindOK Kind = iota
	KindBadValue
	KindNameNotFound
	KindIo
	KindDeadObject
	KindCancelled
	KindWouldBlock
	KindInvalidOperation
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindBadValue:
		return "BadValue"
	case KindNameNotFound:
		return "NameNotFound"
	case KindIo:
		return "Io"
	case KindDeadObject:
		return "DeadObject"
	case KindCancelled:
		return "Cancelled"
	case KindWouldBlock:
		return "WouldBlock"
	case KindInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}

// Status is the error type returned across every Session operation.
// Callers distinguish kinds with errors.Is against the Err* sentinels
// below, or by unwrapping to *Status and inspecting Kind.
type Status struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, e.g. a *net.OpError for KindIo
}

func (s *Status) Error() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s: %v", s.Kind, s.Msg, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Msg)
}

func (s *Status) Unwrap() error { return s.Err }

// Is lets errors.Is(err, ErrCancelled) etc. match any *Status of the same
// Kind, regardless of message or wrapped cause.
func (s *Status) Is(target error) bool {
	t, ok := target.(*Status)
	if !ok {
		return false
	}
	return s.Kind == t.Kind
}

func newStatus(kind Kind, msg string, cause error) *Status {
	return &Status{Kind: kind, Msg: msg, Err: cause}
}

// Sentinel Statuses for errors.Is comparisons, one per Kind in spec.md §7.
var (
	ErrBadValue         = &Status{Kind: KindBadValue, Msg: "bad value"}
	ErrNameNotFound     = &Status{Kind: KindNameNotFound, Msg: "name not found"}
	ErrIo               = &Status{Kind: KindIo, Msg: "io error"}
	ErrDeadObject       = &Status{Kind: KindDeadObject, Msg: "dead object"}
	ErrCancelled        = &Status{Kind: KindCancelled, Msg: "cancelled"}
	ErrWouldBlock       = &Status{Kind: KindWouldBlock, Msg: "would block"}
	ErrInvalidOperation = &Status{Kind: KindInvalidOperation, Msg: "invalid operation"}
)

func statusOf(kind Kind, format string, args ...interface{}) *Status {
	return newStatus(kind, fmt.Sprintf(format, args...), nil)
}

func wrapStatus(kind Kind, cause error, format string, args ...interface{}) *Status {
	return newStatus(kind, fmt.Sprintf(format, args...), cause)
}

// KindOf extracts the Kind of err if it is (or wraps) a *Status, reporting
// ok=false for any other error (including nil).
func KindOf(err error) (Kind, bool) {
	var s *Status
	if errors.As(err, &s) {
		return s.Kind, true
	}
	return KindOK, false
}
