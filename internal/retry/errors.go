package retry

import "fmt"

// ExhaustedError is returned once every permitted attempt has failed.
type ExhaustedError struct {
	Err         error  // the error returned by the final attempt
	Attempts    int    // the number of attempts made
	MaxAttempts int    // the configured attempt limit
	Label       string // describes the operation, for diagnostics
}

func (e *ExhaustedError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("failed after %d/%d attempts: %v", e.Attempts, e.MaxAttempts, e.Err)
	}

	return fmt.Sprintf("%s failed after %d/%d attempts: %v", e.Label, e.Attempts, e.MaxAttempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
