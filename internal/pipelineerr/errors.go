// Package pipelineerr is the pipeline's error taxonomy: stage functions
// return a typed *Error, and the task runner classifies it at a single
// boundary (internal/worker) to decide retry vs. fail, rather than
// switching on provider-specific error types scattered across stages.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy bucket.
type Kind string

const (
	KindTransientExternal Kind = "transient_external"
	KindRateLimit         Kind = "rate_limit"
	KindValidation        Kind = "validation"
	KindAuthorization     Kind = "authorization"
	KindIntegrity         Kind = "integrity"
	KindCancelled         Kind = "cancelled"
)

// Error is the pipeline's single error shape. Code is a stable
// machine-readable identifier safe to surface to a UI (never a stack
// trace); Kind drives retry classification.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the task runner should retry the task that
// produced this error (Transient/RateLimit within max_retries).
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindTransientExternal, KindRateLimit:
		return true
	default:
		return false
	}
}

func newErr(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Transient wraps an external-provider/broker/network failure.
func Transient(code, message string, err error) *Error {
	return newErr(KindTransientExternal, code, message, err)
}

// RateLimited wraps a provider 429 / quota-exceeded failure.
func RateLimited(code, message string, err error) *Error {
	return newErr(KindRateLimit, code, message, err)
}

// Validation wraps a non-retryable input error.
func Validation(code, message string, err error) *Error {
	return newErr(KindValidation, code, message, err)
}

// Authorization wraps a non-retryable access-control error.
func Authorization(code, message string, err error) *Error {
	return newErr(KindAuthorization, code, message, err)
}

// Integrity wraps a fatal consistency violation (e.g. chunk contiguity
// check failed at merge) requiring operator intervention.
func Integrity(code, message string, err error) *Error {
	return newErr(KindIntegrity, code, message, err)
}

// Cancelled wraps a user-initiated, non-failure terminal state.
func Cancelled(code, message string) *Error {
	return newErr(KindCancelled, code, message, nil)
}

// Common stable codes referenced across the pipeline.
const (
	CodeEmptyDocument      = "EMPTY_FILE"
	CodeOversizePDF        = "OVERSIZE_PDF"
	CodeInvalidPDFFormat   = "INVALID_PDF_FORMAT"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeChunkContiguity    = "CHUNK_CONTIGUITY_VIOLATION"
	CodeChunkingPartial    = "CHUNKING_PARTIAL_FAILURE"
	CodeLockNotAcquired    = "LOCK_NOT_ACQUIRED"
	CodeWorkerTimeout      = "WORKER_TIMEOUT"
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
)

// As reports whether err (or a wrapped cause) is a *Error, mirroring the
// stdlib errors.As convention used throughout the pipeline.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
