package common

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")

	// ErrTransient marks failures worth retrying with backoff.
	ErrTransient           = errors.New("transient error")
	ErrSourceUnavailable   = &transientError{msg: "source unavailable"}
	ErrProviderTimeout     = &transientError{msg: "provider timeout"}
	ErrProviderRateLimited = &transientError{msg: "provider rate limited"}

	ErrInvalidSymbol  = errors.New("invalid symbol")
	ErrProviderError  = errors.New("provider error")
	ErrMalformedData  = errors.New("malformed data")
	ErrClaimConflict  = errors.New("claim conflict")
	ErrTimeout        = errors.New("timeout")
	ErrCancelled      = errors.New("cancelled")
	ErrPoolClosed     = errors.New("worker pool closed")
	ErrRecordNotFound = errors.New("record not found")
)

type transientError struct {
	msg string
}

func (e *transientError) Error() string { return e.msg }

func (e *transientError) Is(target error) bool {
	return target == ErrTransient
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrTransient)
}
