package cycle

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedFrequency = errors.New("unsupported benefit frequency")
	ErrMissingAnchor        = errors.New("cycle anchor required for anniversary alignment")
	ErrCycleMismatch        = errors.New("computed cycle does not match benefit metadata")
	ErrInvalidWindow        = errors.New("invalid cycle window")
)

// MismatchError reports a window that disagrees with what the benefit
// metadata says it should be.
type MismatchError struct {
	Reason        string
	ExpectedStart time.Month
	ExpectedEnd   time.Month
	Actual        Window
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s (expected start month in %s-%s, got %s)",
		ErrCycleMismatch, e.Reason, e.ExpectedStart, e.ExpectedEnd, e.Actual)
}

func (e *MismatchError) Unwrap() error { return ErrCycleMismatch }
