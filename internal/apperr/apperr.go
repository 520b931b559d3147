// Package apperr defines the error taxonomy exposed by the order engine.
//
// Three sentinel errors separate caller mistakes from missing resources and
// from ledger corruption. Handlers classify with errors.Is; everything else
// propagates as an infrastructure failure and aborts the transaction.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or infeasible order input. Always
	// caller-correctable, never retried automatically.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown instrument, order, or missing market
	// price. Surfaced directly, not retried.
	ErrNotFound = errors.New("not found")

	// ErrInconsistentState marks negative cash or a negative position
	// detected during a valuation fold. A data-integrity alarm, not a user
	// input problem: it means a previously accepted order should not have
	// been, and must never be silently swallowed.
	ErrInconsistentState = errors.New("inconsistent portfolio state")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Inconsistentf wraps ErrInconsistentState with a formatted message.
func Inconsistentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistentState, fmt.Sprintf(format, args...))
}
