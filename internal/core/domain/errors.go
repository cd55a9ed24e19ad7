package domain

import (
	"errors"
	"fmt"
)

// Error kinds mirror the failure taxonomy the pipeline reports on:
// adapters classify provider failures into one of these before the
// use cases ever see them.
var (
	ErrTransient            = errors.New("transient external failure")
	ErrRateLimited          = errors.New("rate limited")
	ErrInputRejected        = errors.New("input rejected")
	ErrSchemaViolation      = errors.New("schema violation")
	ErrStoragePostcondition = errors.New("storage postcondition failed")
	ErrConfiguration        = errors.New("configuration error")
	ErrNotFound             = errors.New("not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
