package engine

import (
	"errors"
	"fmt"
)

// AttemptBudget bounds how many times one intent is delivered.
//
// Each dispatch gets its own budget. Next() is called before every attempt;
// once the budget is spent the intent stays pending and is left to expiry,
// which reverts it. Expiry never cancels a request already on the wire.
type AttemptBudget struct {
	max     int
	current int
}

// NewAttemptBudget creates a budget allowing max attempts. max < 1 is
// treated as 1.
func NewAttemptBudget(max int) *AttemptBudget {
	if max < 1 {
		max = 1
	}
	return &AttemptBudget{max: max}
}

// Next counts an attempt. Returns AttemptsExhaustedError once more than max
// attempts have been requested.
func (b *AttemptBudget) Next(correlationID string) error {
	b.current++
	if b.current > b.max {
		return &AttemptsExhaustedError{
			CorrelationID: correlationID,
			Attempts:      b.current - 1,
			Limit:         b.max,
		}
	}
	return nil
}

// Current returns the number of attempts counted so far.
func (b *AttemptBudget) Current() int {
	return b.current
}

// Max returns the attempt limit.
func (b *AttemptBudget) Max() int {
	return b.max
}

// AttemptsExhaustedError is returned when an intent has used its delivery
// budget without reaching the backend.
type AttemptsExhaustedError struct {
	CorrelationID string
	Attempts      int
	Limit         int
	Last          error // last transient error seen
}

func (e *AttemptsExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("intent %s: delivery failed after %d attempts (limit %d): %v",
			e.CorrelationID, e.Attempts, e.Limit, e.Last)
	}
	return fmt.Sprintf("intent %s: delivery failed after %d attempts (limit %d)",
		e.CorrelationID, e.Attempts, e.Limit)
}

func (e *AttemptsExhaustedError) Unwrap() error {
	return e.Last
}

// IsAttemptsExhausted returns true if err is an AttemptsExhaustedError.
func IsAttemptsExhausted(err error) bool {
	var ae *AttemptsExhaustedError
	return errors.As(err, &ae)
}
