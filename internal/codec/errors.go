package codec

import (
	"errors"
	"fmt"
)

// ErrShape is the sentinel matched by every ShapeError.
var ErrShape = errors.New("malformed matrix")

// ShapeError reports a matrix whose dimensions do not match the expected
// wire layout. Rows and Cols describe the offending input (Cols is the
// length of the first row).
type ShapeError struct {
	Reason string
	Rows   int
	Cols   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s (got %dx%d)", ErrShape, e.Reason, e.Rows, e.Cols)
}

// Unwrap lets errors.Is(err, ErrShape) match.
func (e *ShapeError) Unwrap() error { return ErrShape }
