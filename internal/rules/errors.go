package rules

import (
	"fmt"

	"mail-archivist/internal/model"
)

// ValidationError rejects a malformed rule before it reaches storage.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid rule: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError carries the rule already stored under the requested key.
type ConflictError struct {
	Existing model.Rule
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rule %q already exists with category %q", e.Existing.Key(), e.Existing.Category)
}

type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.Key)
}
