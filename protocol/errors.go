package protocol

import (
	"errors"
	"fmt"
)

// StatusError represents a non-zero status code returned by a Driver call.
type StatusError struct {
	// Operation is the driver call that failed
	Operation string

	// Code is the driver status code
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Operation, statusName(e.Code), e.Code)
}

// IsStatusError returns true if err is or wraps a StatusError.
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// CheckStatus returns a *StatusError for any code other than StatusSuccess.
func CheckStatus(operation string, code int) error {
	if code == StatusSuccess {
		return nil
	}
	return &StatusError{Operation: operation, Code: code}
}

func statusName(code int) string {
	switch code {
	case StatusSuccess:
		return "success"
	case StatusTransportError:
		return "transport error"
	default:
		return "driver status"
	}
}
