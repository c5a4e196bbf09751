// Package validation provides common validation utilities for the taskmgr library.
package validation

import (
	"fmt"

	tmerrors "github.com/vnykmshr/taskmgr/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return tmerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateAtMost validates that an integer value does not exceed max.
// Returns a ValidationError if the value is larger than max.
func ValidateAtMost(module, field string, value, max int) error {
	if value > max {
		return tmerrors.NewValidationError(module, field, value, "too large").
			WithHint(fmt.Sprintf("use a value of at most %d", max))
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return tmerrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return tmerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
