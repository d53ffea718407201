package queue

import "errors"

// Policy bounds how much work a Scheduler lets through.
type Policy struct {
	MaxConcurrent int     // most operations allowed to execute at once
	RatePerSecond float64 // most operations dispatched per second
}

// DefaultPolicy is a conservative policy suited to free-tier explorer API keys.
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrent: 5,
		RatePerSecond: 5,
	}
}

// Validate reports whether the policy can be used by a Scheduler.
func (p Policy) Validate() error {
	if p.MaxConcurrent < 1 {
		return errors.New("max concurrent must be at least 1")
	}

	if p.RatePerSecond <= 0 {
		return errors.New("rate per second must be positive")
	}

	return nil
}
