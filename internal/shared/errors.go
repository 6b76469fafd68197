package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input; retrying will not help.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates a transition not allowed from the current state.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConflict indicates a uniqueness or concurrency conflict.
	ErrConflict = errors.New("conflict")
	// ErrDailyCapacityExceeded indicates the daily sequence space is exhausted.
	ErrDailyCapacityExceeded = errors.New("daily sequence capacity exceeded")
	// ErrExcessPayment indicates a payment larger than the outstanding balance.
	ErrExcessPayment = errors.New("payment exceeds outstanding amount")
)
