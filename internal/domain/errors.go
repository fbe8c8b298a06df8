package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed client input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks an idempotency hit within the TTL window.
	ErrDuplicate = errors.New("duplicate request")
	// ErrUnavailable marks a rejected call while a circuit breaker is open.
	ErrUnavailable = errors.New("service unavailable")
	// ErrDependency marks a user or template lookup that did not return 200.
	ErrDependency = errors.New("dependency validation failed")
	// ErrRateLimited marks an admission rejected by the per-type rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNotFound marks a missing status record.
	ErrNotFound = errors.New("not found")
	// ErrPublish marks a broker publish failure.
	ErrPublish = errors.New("publish failed")
)

// FieldError is a single typed violation found during request validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError carries the complete list of violations for a request.
// Validation accumulates every violation instead of stopping at the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}

	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(messages, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
