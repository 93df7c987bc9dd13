// Package lockout decides whether an identity may attempt to log in given its
// failure history. It has no state and performs no I/O.
package lockout

import "time"

// Policy holds the configured lockout limits. A zero Threshold disables
// lockout: failures are still counted but never block.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// Decision is the outcome of Evaluate. RetryAfter is set only when the
// attempt is refused.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Enabled reports whether failures can ever block a login.
func (p Policy) Enabled() bool {
	return p.Threshold > 0
}

// Evaluate reports whether a login attempt may proceed at now. Only a lock
// that is still running blocks; an expired lock is ignored and a disabled
// policy never blocks. failedCount is accepted for completeness and does not
// block by itself, the lock expiry is authoritative.
func Evaluate(failedCount int, lockedUntil *time.Time, now time.Time, p Policy) Decision {
	if !p.Enabled() || lockedUntil == nil || !now.Before(*lockedUntil) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, RetryAfter: lockedUntil.Sub(now)}
}

// Evaluate applies the package function with p's limits.
func (p Policy) Evaluate(failedCount int, lockedUntil *time.Time, now time.Time) Decision {
	return Evaluate(failedCount, lockedUntil, now, p)
}

// AfterFailure returns the failure count and lock expiry that result from one
// more failed attempt at now. The lock is set when the count reaches the
// threshold and every later failure while at or above it extends the lock.
func (p Policy) AfterFailure(failedCount int, lockedUntil *time.Time, now time.Time) (int, *time.Time) {
	count := failedCount + 1
	if !p.Enabled() {
		return count, lockedUntil
	}
	if count >= p.Threshold {
		until := now.Add(p.Duration)
		return count, &until
	}
	return count, lockedUntil
}

// AfterSuccess returns the failure count after a successful login. Counters
// are only reset while the policy is active.
func (p Policy) AfterSuccess(failedCount int) int {
	if !p.Enabled() {
		return failedCount
	}
	return 0
}
