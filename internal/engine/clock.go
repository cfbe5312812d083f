package engine

import "time"

// TimeSource supplies wall-clock time for intent timestamps, expiry and
// retry backoff. Tests substitute a stopped clock.
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the system clock.
type SystemTime struct{}

// Now returns time.Now().
func (SystemTime) Now() time.Time { return time.Now() }
