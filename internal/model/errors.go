package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInterval is returned when a funding interval is zero or
	// negative. The record carrying it is dropped, never defaulted.
	ErrInvalidInterval = errors.New("funding interval must be positive")

	// ErrMalformedRecord is returned when a record lacks the identity
	// fields consumers key on. The record is dropped and logged, the
	// batch continues.
	ErrMalformedRecord = errors.New("malformed funding rate record")
)

// AdapterError wraps a fetch failure from a single exchange. It isolates
// the failure to that source; the run continues with the remaining
// exchanges.
type AdapterError struct {
	Exchange string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Exchange, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
