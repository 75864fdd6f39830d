package checkout

import (
	"fmt"
	"strings"

	"furniture-store/internal/model"
)

// ValidationError lists the fields that stopped a submission before any network call.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return model.ErrValidation
}

// UnreconciledError means the card was charged but no order exists for Reference.
type UnreconciledError struct {
	Reference string
	Cause     error
}

func (e *UnreconciledError) Error() string {
	return fmt.Sprintf("payment %s captured but order not recorded: %v", e.Reference, e.Cause)
}

func (e *UnreconciledError) Unwrap() error {
	return model.ErrSucceededUnreconciled
}
