package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"network",
	"bad gateway",
	"internal server error",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

var rateLimitMessageTokens = []string{
	"rate limit",
	"too many requests",
	"max rate",
	"status 429",
	"-32005",
}

// IsRetryable reports whether err looks like a transient failure: a timeout,
// a network or connection failure, provider rate limiting or a server error.
//
// The Executor retries every failure regardless of this result; it is used to
// annotate logs and metrics.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if IsRateLimited(err) {
		return true
	}

	return containsAny(strings.ToLower(err.Error()), transientMessageTokens)
}

// IsRateLimited reports whether err was caused by a provider refusing the
// request because of its rate limit.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	return containsAny(strings.ToLower(err.Error()), rateLimitMessageTokens)
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}

	return false
}
