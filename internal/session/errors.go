package session

import (
	"errors"
	"fmt"
)

// ErrConnection matches every *ConnectionError.
var ErrConnection = errors.New("engine connection failed")

// ConnectionError reports that both the primary and the fallback connection
// attempts failed.
type ConnectionError struct {
	Primary  error
	Fallback error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%v: reuse attempt: %v; new session attempt: %v", ErrConnection, e.Primary, e.Fallback)
}

// Unwrap exposes the sentinel and both causes to errors.Is/As.
func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Primary, e.Fallback}
}
