package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound      = errors.New("not found")
	ErrRunNotFound   = fmt.Errorf("run %w", ErrNotFound)
	ErrBatchNotFound = fmt.Errorf("batch %w", ErrNotFound)
)

// RunNotFound reports a missing run; it matches ErrRunNotFound and ErrNotFound.
func RunNotFound(id RunID) error {
	return fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// BatchNotFound reports a missing batch.
func BatchNotFound(id BatchID) error {
	return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
}
