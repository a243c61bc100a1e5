package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/morgisync/internal/remote"
)

// SyncError is a failed user operation.
//
// A SyncError never implies a cache change: patches are applied only after
// the store confirms.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the operation, e.g. "trash" or "delete category".
	Op string

	// ID is the image id or category name involved, if any.
	ID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// ErrCodeTransient indicates the store could not be reached, or failed
	// on its side. Mutations are not retried automatically.
	ErrCodeTransient ErrorCode = "TRANSIENT_NETWORK_FAILURE"

	// ErrCodePrecondition indicates a local rejection made before any
	// remote call, or a store-side duplicate.
	ErrCodePrecondition ErrorCode = "PRECONDITION_REJECTED"

	// ErrCodeConflict indicates a rename collision. The category controller
	// turns it into a merge confirmation; it only surfaces in logs.
	ErrCodeConflict ErrorCode = "REMOTE_CONFLICT"

	// ErrCodeNotFound indicates the target no longer exists remotely.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeRejected indicates any other refusal by the store.
	ErrCodeRejected ErrorCode = "REMOTE_REJECTED"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s: %s (id=%s)", e.Code, e.Op, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Reject builds a precondition error for a check that failed locally.
func Reject(op, id, format string, args ...any) *SyncError {
	return &SyncError{
		Code:    ErrCodePrecondition,
		Op:      op,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
	}
}

// Classify wraps an error returned by the store into a SyncError.
// Nil stays nil; an existing SyncError is returned as is.
func Classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}

	code := ErrCodeRejected
	msg := err.Error()

	var status *remote.StatusError
	switch {
	case errors.As(err, &status):
		if status.Detail != "" {
			msg = status.Detail
		} else {
			msg = http.StatusText(status.Status)
		}
		switch {
		case status.Status == http.StatusNotFound:
			code = ErrCodeNotFound
		case status.Status == http.StatusConflict:
			code = ErrCodePrecondition
		case status.Status >= 500:
			code = ErrCodeTransient
		}
	case remote.IsTransport(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		code = ErrCodeTransient
	}

	return &SyncError{Code: code, Op: op, ID: id, Message: msg, Err: err}
}

// CodeOf returns the code of a SyncError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsTransient reports whether err is a transient network failure.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransient
}

// IsPrecondition reports whether err is a local or duplicate rejection.
func IsPrecondition(err error) bool {
	return CodeOf(err) == ErrCodePrecondition
}

// IsNotFound reports whether err is a stale reference.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsRejected reports whether the store refused the operation.
func IsRejected(err error) bool {
	return CodeOf(err) == ErrCodeRejected
}
