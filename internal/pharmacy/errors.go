package pharmacy

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an operation is attempted from a state that does not allow it
var ErrInvalidTransition = errors.New("invalid state transition")

// Kind classifies recoverable workflow failures
type Kind int

const (
	KindUnknown Kind = iota
	// PermissionDenied means the camera could not be acquired
	PermissionDenied
	// SubmissionFailed means the prescription scan failed
	SubmissionFailed
	// ConfirmationFailed means the bill could not be authorized
	ConfirmationFailed
	// QueryFailed means an inventory search failed
	QueryFailed
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case SubmissionFailed:
		return "submission failed"
	case ConfirmationFailed:
		return "confirmation failed"
	case QueryFailed:
		return "query failed"
	default:
		return "unknown"
	}
}

// Error is a recoverable workflow failure with a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a workflow error, or KindUnknown
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message for err
func Message(err error) string {
	if err == nil {
		return ""
	}
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Message
	}
	return err.Error()
}
