package picking

import (
	"errors"
	"fmt"

	"github.com/zombor/dispatch-prep/internal/scanning"
)

var (
	// ErrNotStarted is returned for scans attempted before preparation started
	ErrNotStarted = errors.New("preparation has not been started")
	// ErrDuplicateLabel is returned when a label was already counted in this session
	ErrDuplicateLabel = errors.New("label already scanned")
	// ErrOrderMismatch is returned when a label printed for another order is declined
	ErrOrderMismatch = errors.New("label belongs to another order")
	// ErrPreparerRequired is returned when starting without an assigned preparer
	ErrPreparerRequired = errors.New("a preparer must be assigned before starting")
	// ErrInvalidState is returned when start or finish is not allowed right now
	ErrInvalidState = errors.New("not allowed in the current preparation state")
	// ErrUnauthorized is returned when the backend rejects the credentials
	ErrUnauthorized = errors.New("authentication required")
	// ErrUnavailable is returned for transport failures and server errors
	ErrUnavailable = errors.New("dispatch service unavailable")
	// ErrSessionAborted is returned for every call after an authentication failure
	ErrSessionAborted = errors.New("session aborted")
	// ErrSessionClosed is returned for every call after the order was closed
	ErrSessionClosed = errors.New("order closed")
	// ErrNotSupported is returned when the backend cannot perform an operation
	ErrNotSupported = errors.New("not supported by the dispatch service")
)

// RejectionError is a backend refusal of a well-formed request, e.g. a scan
// that would exceed the target quantity
type RejectionError struct {
	Status  int
	Message string
	Err     error
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rejected by dispatch service (status %d)", e.Status)
	}
	return fmt.Sprintf("rejected by dispatch service (status %d): %s", e.Status, e.Message)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// FailureKind groups errors by how the station reacts to them
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureParse     FailureKind = "parse"
	FailureDuplicate FailureKind = "duplicate"
	FailureState     FailureKind = "state"
	FailureRejected  FailureKind = "rejected"
	FailureAuth      FailureKind = "auth"
	FailureNetwork   FailureKind = "network"
)

// Classify maps an error onto its FailureKind
func Classify(err error) FailureKind {
	var rej *RejectionError
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionAborted):
		return FailureAuth
	case errors.As(err, &rej):
		return FailureRejected
	case errors.Is(err, ErrDuplicateLabel):
		return FailureDuplicate
	case errors.Is(err, scanning.ErrEmptyProductCode),
		errors.Is(err, scanning.ErrInvalidQuantity),
		errors.Is(err, scanning.ErrEmptyLabel),
		errors.Is(err, scanning.ErrUnrecognizedShape):
		return FailureParse
	case errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrPreparerRequired),
		errors.Is(err, ErrOrderMismatch),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrNotSupported):
		return FailureState
	default:
		return FailureNetwork
	}
}
