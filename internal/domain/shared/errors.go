package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Submission engine errors
var (
	ErrAlreadyQueued      = NewDomainError("ALREADY_QUEUED", "Sale already has an active submission queue entry")
	ErrInvalidTransition  = NewDomainError("INVALID_TRANSITION", "Illegal queue entry state transition")
	ErrFBRNotConfigured   = NewDomainError("FBR_NOT_CONFIGURED", "FBR credentials are not configured for this tenant")
	ErrRefDataUnavailable = NewDomainError("REFERENCE_DATA_UNAVAILABLE", "FBR reference data is not available")
)
