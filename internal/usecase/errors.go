package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorSessionBusy  ErrorCode = "SESSION_BUSY"
	ErrorConflict     ErrorCode = "CONFLICT"
	ErrorUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is the only error type returned across the usecase boundary. Reason
// is a stable snake_case tag safe to log; Err may carry infrastructure detail
// and is never shown to visitors.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
