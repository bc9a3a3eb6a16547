package orchestrator

import (
	"errors"
	"fmt"
)

// OrchestrationError is a structured error raised by the orchestration core.
//
// The taxonomy matches how each class recovers:
//   - VALIDATION_FAILED: caught locally, surfaced as a failed state
//     transition, never escalated past the triggering operation.
//   - TRANSPORT_FAILED: streams reconnect; one-shot mutations report it and
//     roll back their optimistic state.
//   - PARTIAL_BATCH: best-effort batch outcome; per-item failures are
//     isolated and the batch always runs to completion.
//   - SESSION_TERMINATED: the backend ended the session; state is cleared
//     and channels are torn down deliberately.
//   - BASKET_IMMUTABLE: a mutation targeted a PAID basket.
//
// No code in this taxonomy is fatal to the process.
type OrchestrationError struct {
	Code    ErrorCode
	Message string
	Token   string            // correlation token of the triggering dispatch
	Details map[string]string // additional context
	Err     error             // underlying cause, if any
}

// ErrorCode categorizes orchestration errors.
type ErrorCode string

const (
	ErrCodeValidation        ErrorCode = "VALIDATION_FAILED"
	ErrCodeTransport         ErrorCode = "TRANSPORT_FAILED"
	ErrCodePartialBatch      ErrorCode = "PARTIAL_BATCH"
	ErrCodeSessionTerminated ErrorCode = "SESSION_TERMINATED"
	ErrCodeBasketImmutable   ErrorCode = "BASKET_IMMUTABLE"
)

// Error implements the error interface.
func (e *OrchestrationError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token=%s)", e.Code, e.Message, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a VALIDATION_FAILED error.
func NewValidationError(message string, details map[string]string) *OrchestrationError {
	return &OrchestrationError{Code: ErrCodeValidation, Message: message, Details: details}
}

// NewTransportError wraps a failed network operation.
func NewTransportError(message string, err error) *OrchestrationError {
	return &OrchestrationError{Code: ErrCodeTransport, Message: message, Err: err}
}

// NewPartialBatchError summarizes a best-effort batch with failures.
func NewPartialBatchError(message string, failed, total int) *OrchestrationError {
	return &OrchestrationError{
		Code:    ErrCodePartialBatch,
		Message: message,
		Details: map[string]string{
			"failed": fmt.Sprintf("%d", failed),
			"total":  fmt.Sprintf("%d", total),
		},
	}
}

// IsValidationError reports whether err is a VALIDATION_FAILED error.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsTransportError reports whether err is a TRANSPORT_FAILED error.
func IsTransportError(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsPartialBatchError reports whether err is a PARTIAL_BATCH error.
func IsPartialBatchError(err error) bool {
	return hasCode(err, ErrCodePartialBatch)
}

func hasCode(err error, code ErrorCode) bool {
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}
