// Package sterr defines the error taxonomy shared by every adapter and
// background task: a small closed set of Codes, wrapped with the
// underlying cause so callers can both match on Code (errors.As) and
// print/ log the original failure.
package sterr

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomy entries from the error handling design.
type Code string

const (
	NetworkError       Code = "NetworkError"
	ParseError         Code = "ParseError"
	DataStoreFailure   Code = "DataStoreFailure"
	LockFailure        Code = "LockFailure"
	Timeout            Code = "Timeout"
	ShutdownInProgress Code = "ShutdownInProgress"
	InvalidArgument    Code = "InvalidArgument"
	CompressionError   Code = "CompressionError"
)

// Error is the concrete error type carried through the pipeline. It is
// never allowed to escape a public evaluation API (check_gate et al.);
// it surfaces only via the observability bus and EvaluationDetails.Reason.
type Error struct {
	Code    Code
	Where   string // component/function that raised it, e.g. "http_specs_adapter.fetch"
	Cause   error
	Details string // short human string, e.g. HTTP status or transport name
}

func New(code Code, where string, cause error, details string) *Error {
	return &Error{Code: code, Where: where, Cause: cause, Details: details}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s in %s: %s (%v)", e.Code, e.Where, e.Details, e.Cause)
	}
	return fmt.Sprintf("%s in %s: %s", e.Code, e.Where, e.Details)
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf extracts the Code from err if it is (or wraps) an *Error.
func CodeOf(err error) (Code, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// Reason renders the EvaluationDetails.Reason suffix for a given error,
// e.g. "Error:NetworkError" or "Error:ParseError"; ShutdownInProgress and
// InvalidArgument render as the bare Code.
func (e *Error) Reason() string {
	switch e.Code {
	case NetworkError, ParseError, DataStoreFailure, LockFailure, Timeout, CompressionError:
		return fmt.Sprintf("Error:%s", e.Code)
	default:
		return fmt.Sprintf("%s", e.Code)
	}
}
