// Package budget bounds the number of steps a traced run may take.
package budget

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps is the ceiling used when none is configured.
const DefaultMaxSteps = 500

// ErrExceeded is wrapped by the error Check returns once the ceiling is passed.
var ErrExceeded = errors.New("STEP_BUDGET")

// Guard enforces a step ceiling.
type Guard struct {
	Max int
}

// New returns a guard for max steps; non-positive values fall back to DefaultMaxSteps.
func New(max int) Guard {
	if max <= 0 {
		max = DefaultMaxSteps
	}
	return Guard{Max: max}
}

// Check returns a wrapped ErrExceeded when step is past the ceiling. The
// error text is the user-facing message.
func (g Guard) Check(step int) error {
	if step > g.Max {
		return &ExceededError{Max: g.Max}
	}
	return nil
}

// ExceededError reports the ceiling that was passed.
type ExceededError struct {
	Max int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("Your code has too many steps (> %d)", e.Max)
}

func (e *ExceededError) Unwrap() error { return ErrExceeded }
