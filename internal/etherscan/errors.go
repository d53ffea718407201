package etherscan

import "fmt"

// APIError is an application-level failure reported by the explorer in a
// well-formed response.
type APIError struct {
	Message string // the envelope's message field, e.g. "NOTOK"
	Detail  string // the envelope's result field when it carries text
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return "explorer API error: " + e.Message
	}

	return fmt.Sprintf("explorer API error: %s: %s", e.Message, e.Detail)
}
