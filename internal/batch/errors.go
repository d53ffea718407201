package batch

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a recipient list.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d invalid recipient(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// InsufficientBalanceError means the sender cannot cover the whole batch.
type InsufficientBalanceError struct {
	Asset     string // "token" or "native"
	Required  string // in whole units
	Available string // in whole units
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: %s required, %s available", e.Asset, e.Required, e.Available)
}

// AbortError means a run stopped before every recipient was processed. The
// outcomes recorded before the abort are still returned with it.
type AbortError struct {
	Err       error
	Processed int // recipients with a recorded outcome
	Remaining int // recipients never attempted
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("batch aborted after %d transfer(s) with %d remaining: %v", e.Processed, e.Remaining, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
