package llm

import (
	"errors"
	"fmt"
)

// TransientError is a temporary transport failure that may succeed on retry:
// network errors, rate limits, 5xx responses.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError is a permanent transport failure such as bad credentials or a
// rejected request. It is never retried and aborts the fallback chain.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ParseFailure reports that no structured record could be recovered from a
// completion. Raw is the untouched completion text.
type ParseFailure struct {
	Raw string
	Err error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("no structured record in model output: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// IsParseFailure returns true if err is or wraps a *ParseFailure.
func IsParseFailure(err error) bool {
	var pf *ParseFailure
	return errors.As(err, &pf)
}
