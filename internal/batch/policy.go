package batch

import (
	"errors"
	"time"

	"github.com/jrh3k5/walletops/internal/retry"
)

// Policy controls how a batch run is paced and retried.
type Policy struct {
	BatchSize           int
	GasMultiplier       float64
	MaxRetries          int           // attempts per transfer, including the first
	RetryDelay          time.Duration // delay after the first failed attempt
	TransferDelay       time.Duration
	BatchDelay          time.Duration
	RateLimitCooldown   time.Duration
	ConfirmationTimeout time.Duration
	DryRun              bool
}

// DefaultPolicy keeps batches small, which avoids throttling on public RPC endpoints.
func DefaultPolicy() Policy {
	return Policy{
		BatchSize:           10,
		GasMultiplier:       1.2,
		MaxRetries:          3,
		RetryDelay:          2 * time.Second,
		TransferDelay:       time.Second,
		BatchDelay:          5 * time.Second,
		RateLimitCooldown:   10 * time.Second,
		ConfirmationTimeout: 2 * time.Minute,
	}
}

// Validate reports whether the policy can be used by an Engine.
func (p Policy) Validate() error {
	switch {
	case p.BatchSize < 1:
		return errors.New("batch size must be at least 1")
	case p.GasMultiplier < 1:
		return errors.New("gas multiplier must be at least 1")
	case p.MaxRetries < 1:
		return errors.New("max retries must be at least 1")
	case p.RetryDelay < 0, p.TransferDelay < 0, p.BatchDelay < 0, p.RateLimitCooldown < 0:
		return errors.New("delays must not be negative")
	}

	return nil
}

// RetryPolicy is the retry policy applied to each chain interaction of a transfer.
func (p Policy) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       p.MaxRetries,
		BaseDelay:         p.RetryDelay,
		MaxDelay:          4 * p.RetryDelay,
		BackoffMultiplier: 2,
	}
}
