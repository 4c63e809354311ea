package usecase

import (
	"errors"
	"fmt"

	"messenger/internal/domain"
)

type ErrorCode string

const (
	// ErrorValidation covers malformed identifiers, non-positive limits and
	// limits above the server cap. Terminal.
	ErrorValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorNotFound covers absent single entities. An empty page is never a
	// not-found condition.
	ErrorNotFound ErrorCode = "NOT_FOUND"
	// ErrorUnavailable reports storage that stayed unreachable after the
	// bounded retries. The caller may retry the whole request.
	ErrorUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrorInternal    ErrorCode = "INTERNAL_ERROR"
)

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

// storeError classifies a storage failure into the service error taxonomy.
func storeError(reason string, err error) *Error {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrMessageNotFound):
		return newError(ErrorNotFound, reason, err)
	case errors.Is(err, domain.ErrUnavailable):
		return newError(ErrorUnavailable, reason, err)
	default:
		return newError(ErrorInternal, reason, err)
	}
}
