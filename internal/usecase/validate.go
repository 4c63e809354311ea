package usecase

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// parseID parses a required UUID-shaped identifier; failures become
// validation errors naming the offending field.
func parseID(field, value string) (uuid.UUID, *Error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.UUID{}, newError(ErrorValidation, field+"_malformed", err)
	}
	return id, nil
}

// checkLimit enforces the positive, server-capped page size contract.
func checkLimit(limit, max int) *Error {
	if limit <= 0 {
		return newError(ErrorValidation, "limit_not_positive", nil)
	}
	if limit > max {
		return newError(ErrorValidation, "limit_exceeds_cap", nil)
	}
	return nil
}
