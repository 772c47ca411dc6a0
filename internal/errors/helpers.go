package errors

import "fmt"

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewStoreError creates a storage error with operation context
func NewStoreError(operation string, err error) *AppError {
	code := ErrCodeStoreRead
	if operation == "set" || operation == "delete" {
		code = ErrCodeStoreWrite
	}
	return Wrap(err, code, fmt.Sprintf("store %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Storage operation failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewCodeNotFoundError is returned when no verification code exists for a number.
func NewCodeNotFoundError(phoneNumber string) *AppError {
	return New(ErrCodeLinkCodeNotFound, "no verification code found").
		WithContext("phone", phoneNumber).
		WithUserMessage("No verification code found. Please request a new code.")
}

// NewCodeExpiredError is returned when the stored code is past its TTL.
func NewCodeExpiredError(phoneNumber string) *AppError {
	return New(ErrCodeLinkCodeExpired, "verification code expired").
		WithContext("phone", phoneNumber).
		WithUserMessage("Verification code expired. Please request a new code.")
}

// NewCodeMismatchError is returned when the submitted code is wrong.
func NewCodeMismatchError(phoneNumber string) *AppError {
	return New(ErrCodeLinkCodeMismatch, "verification code mismatch").
		WithContext("phone", phoneNumber).
		WithUserMessage("Invalid verification code. Please try again.")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// CostCeilingExceededError signals that a tool hit its daily spend cap and
// has no fallback model. This is the one error the chat path must surface
// to the end user instead of swallowing.
type CostCeilingExceededError struct {
	ToolID  string
	Ceiling float64
}

func (e *CostCeilingExceededError) Error() string {
	return fmt.Sprintf("tool %s has exceeded its daily cost limit of $%g", e.ToolID, e.Ceiling)
}

// NewCostCeilingError wraps a CostCeilingExceededError as an AppError so the
// HTTP layer can render it uniformly.
func NewCostCeilingError(toolID string, ceiling float64) *AppError {
	cause := &CostCeilingExceededError{ToolID: toolID, Ceiling: ceiling}
	return Wrap(cause, ErrCodeCostCeiling, cause.Error()).
		WithContext("tool_id", toolID).
		WithContext("ceiling", ceiling).
		WithUserMessage(fmt.Sprintf("The %s tool has reached its daily budget and is unavailable today.", toolID))
}
