package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/optisync/internal/model"
)

// ErrRejected is matched by every explicit server rejection.
// Use errors.Is(err, ErrRejected).
var ErrRejected = errors.New("rejected by server")

// RejectionError is a semantic error returned by the backend (e.g. a
// duplicate vote). A rejected intent fails immediately and is not retried.
//
// Backends construct it with Reject.
type RejectionError struct {
	Code    string
	Message string
}

// Reject returns a RejectionError.
func Reject(code, message string) *RejectionError {
	return &RejectionError{Code: code, Message: message}
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected (%s): %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrRejected) hold for any RejectionError.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// MutationError is an error tied to a single intent. Errors are surfaced at
// the granularity of one entry and never abort the view.
type MutationError struct {
	// Code identifies the error category.
	Code MutationErrorCode

	// Message is a human-readable description.
	Message string

	// CorrelationID identifies the affected intent, if any.
	CorrelationID string

	Kind     model.Kind
	TargetID string

	// Err is the underlying cause, if any.
	Err error
}

// MutationErrorCode categorizes mutation errors.
type MutationErrorCode string

const (
	// ErrCodeRejected indicates the server refused the mutation.
	ErrCodeRejected MutationErrorCode = "REJECTED"

	// ErrCodeExpired indicates the intent outlived its validity window.
	ErrCodeExpired MutationErrorCode = "EXPIRED"

	// ErrCodeTargetBusy indicates another mutation holds the same target.
	ErrCodeTargetBusy MutationErrorCode = "TARGET_BUSY"

	// ErrCodeUnknownCorrelation indicates no intent has that correlation id.
	ErrCodeUnknownCorrelation MutationErrorCode = "UNKNOWN_CORRELATION"

	// ErrCodeViewClosed indicates the view was closed.
	ErrCodeViewClosed MutationErrorCode = "VIEW_CLOSED"

	// ErrCodeInvalidIntent indicates the action was malformed.
	ErrCodeInvalidIntent MutationErrorCode = "INVALID_INTENT"
)

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (intent=%s)", e.Code, e.Message, e.CorrelationID)
	}
	if e.TargetID != "" {
		return fmt.Sprintf("%s: %s (kind=%s, target=%s)", e.Code, e.Message, e.Kind, e.TargetID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code MutationErrorCode) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsRejected returns true for explicit server rejections, wrapped or not.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected) || hasCode(err, ErrCodeRejected)
}

// IsExpired returns true if the intent timed out.
func IsExpired(err error) bool { return hasCode(err, ErrCodeExpired) }

// IsTargetBusy returns true if another unresolved intent holds the target.
func IsTargetBusy(err error) bool { return hasCode(err, ErrCodeTargetBusy) }

// IsUnknownCorrelation returns true if the correlation id is not tracked.
func IsUnknownCorrelation(err error) bool { return hasCode(err, ErrCodeUnknownCorrelation) }

// IsViewClosed returns true if the view was closed.
func IsViewClosed(err error) bool { return hasCode(err, ErrCodeViewClosed) }

// NewTargetBusyError creates a MutationError for a guarded target.
func NewTargetBusyError(kind model.Kind, targetID, holder string) *MutationError {
	return &MutationError{
		Code:     ErrCodeTargetBusy,
		Message:  fmt.Sprintf("intent %s is still unresolved for this target", holder),
		Kind:     kind,
		TargetID: targetID,
	}
}

// NewUnknownCorrelationError creates a MutationError for an untracked id.
func NewUnknownCorrelationError(correlationID string) *MutationError {
	return &MutationError{
		Code:          ErrCodeUnknownCorrelation,
		Message:       "no intent with this correlation id",
		CorrelationID: correlationID,
	}
}

// NewInvalidIntentError creates a MutationError for a malformed action.
func NewInvalidIntentError(kind model.Kind, targetID, message string) *MutationError {
	return &MutationError{
		Code:     ErrCodeInvalidIntent,
		Message:  message,
		Kind:     kind,
		TargetID: targetID,
	}
}

var errViewClosed = &MutationError{Code: ErrCodeViewClosed, Message: "view is closed"}
