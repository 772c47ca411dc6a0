package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	err := New(ErrCodeNotFound, "tool not found")
	assert.Equal(t, "NOT_FOUND: tool not found", err.Error())

	wrapped := Wrap(fmt.Errorf("row missing"), ErrCodeStoreRead, "lookup failed")
	assert.Equal(t, "STORE_READ: lookup failed: row missing", wrapped.Error())
}

func TestWrapUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeLLMAPI, "chat call failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestHasCodeThroughWrappingChain(t *testing.T) {
	err := NewCostCeilingError("math-tutor", 1.5)
	chained := fmt.Errorf("selecting model: %w", err)

	assert.True(t, HasCode(chained, ErrCodeCostCeiling))
	assert.False(t, HasCode(chained, ErrCodeNotFound))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrCodeCostCeiling))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeValidationFailed, GetCode(NewValidationError("phone", "abc", "must be E.164")))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain")))
}

func TestGetUserMessage(t *testing.T) {
	err := NewCodeExpiredError("+15551234567")
	assert.Equal(t, "Verification code expired. Please request a new code.", GetUserMessage(err))

	assert.Equal(t, "An internal error occurred", GetUserMessage(fmt.Errorf("plain")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeInternalError, "boom")))
}

func TestCostCeilingErrorCarriesCause(t *testing.T) {
	err := NewCostCeilingError("math-tutor", 2.0)

	var ceiling *CostCeilingExceededError
	require.True(t, stderrors.As(err, &ceiling))
	assert.Equal(t, "math-tutor", ceiling.ToolID)
	assert.Equal(t, 2.0, ceiling.Ceiling)
	assert.Contains(t, err.Error(), "$2")
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeRateLimit, "too many requests").
		WithContext("limit", 20).
		WithContext("window", "1m")

	assert.Equal(t, 20, err.Context["limit"])
	assert.Equal(t, "1m", err.Context["window"])
}
