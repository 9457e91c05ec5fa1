package fbr

import (
	"fmt"
	"strings"
)

// Violation is a single validation failure on an invoice field
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors carries the full list of violations found on an invoice so
// the caller can fix all issues in one round trip.
type ValidationErrors struct {
	Violations []Violation
}

// Error implements the error interface
func (e *ValidationErrors) Error() string {
	if len(e.Violations) == 0 {
		return "invoice validation failed"
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "invoice validation failed: " + strings.Join(msgs, "; ")
}

// PermanentError is a rejection by the authority that will not succeed on
// retry without a payload change (structured validation response, 4xx).
type PermanentError struct {
	StatusCode int
	Message    string
	Violations []Violation
}

// Error implements the error interface
func (e *PermanentError) Error() string {
	if len(e.Violations) > 0 {
		msgs := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			msgs[i] = v.Message
		}
		return fmt.Sprintf("FBR rejected invoice (status %d): %s", e.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("FBR rejected invoice (status %d): %s", e.StatusCode, e.Message)
}
