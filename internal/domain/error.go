package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrStaleVersion       = errors.New("record modified concurrently")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrQueueSaturated     = errors.New("queue is saturated")
)

// ValidationError is a caller mistake surfaced synchronously: missing
// credential, unsupported import file, job without pages, malformed body.
// Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConflictError guards the job lock: mutating a locked or running job.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// GatewayError wraps a model-provider failure after retries are exhausted,
// or an unusable response shape. Recorded on the failing page only.
type GatewayError struct {
	Msg string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

func Gatewayf(err error, format string, args ...any) error {
	return &GatewayError{Msg: fmt.Sprintf(format, args...), Err: err}
}

func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// PolicyHalt is not a failure: the page is parked in "blocked" pending a
// human decision (QA strict flagged it, or a prerequisite artifact is absent).
type PolicyHalt struct {
	Reason string
}

func (e *PolicyHalt) Error() string { return e.Reason }

func Haltf(format string, args ...any) error {
	return &PolicyHalt{Reason: fmt.Sprintf(format, args...)}
}

func IsPolicyHalt(err error) bool {
	var ph *PolicyHalt
	return errors.As(err, &ph)
}
