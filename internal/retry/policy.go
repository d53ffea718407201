package retry

import (
	"errors"
	"math"
	"time"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts       int           // total attempts, including the first
	BaseDelay         time.Duration // delay after the first failed attempt
	MaxDelay          time.Duration // upper bound for any single delay
	BackoffMultiplier float64       // growth factor applied per failed attempt
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Validate reports whether the policy can be used by an Executor.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return errors.New("max attempts must be at least 1")
	case p.BaseDelay < 0:
		return errors.New("base delay must not be negative")
	case p.MaxDelay < p.BaseDelay:
		return errors.New("max delay must not be less than base delay")
	case p.BackoffMultiplier < 1:
		return errors.New("backoff multiplier must be at least 1")
	}

	return nil
}

// Delay returns how long to wait after the given (1-based) failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}
