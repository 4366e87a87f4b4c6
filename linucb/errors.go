package linucb

import (
	"errors"
	"fmt"
)

// ErrNotPositiveDefinite is returned when a Gram matrix cannot be factorized.
// A is seeded with the identity, so this indicates corrupted statistics.
var ErrNotPositiveDefinite = errors.New("linucb: gram matrix is not positive definite")

// DimensionError represents a shape mismatch between inputs
type DimensionError struct {
	Expected int
	Got      int
	Type     string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s must have size %d, got %d", e.Type, e.Expected, e.Got)
}
