package tdx

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup yields no matching record.
var ErrNotFound = errors.New("tdx: not found")

// TransientError reports a network, HTTP or credential failure talking to TDX.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tdx: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tdx: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
