package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeHelpers(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := NewNetworkError("could not reach the render service", cause)

	assert.True(t, IsNetworkError(err))
	assert.False(t, IsValidationError(err))
	assert.Equal(t, "NETWORK_ERROR", err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "could not reach the render service", MessageOf(err))

	wrapped := fmt.Errorf("submit: %w", err)
	assert.True(t, IsNetworkError(wrapped))
	assert.Equal(t, ErrorTypeNetwork, TypeOf(wrapped))
}

func TestWrapErrorKeepsType(t *testing.T) {
	base := NewMissingMediaError("scene 2 has no media", nil)
	err := WrapError(base, "cannot submit", ErrorTypeValidation)

	assert.True(t, IsMissingMediaError(err))
	assert.Equal(t, "cannot submit: scene 2 has no media", MessageOf(err))
	assert.Nil(t, WrapError(nil, "x", ErrorTypeNetwork))

	plain := WrapError(fmt.Errorf("boom"), "fetch failed", ErrorTypeNetwork)
	assert.True(t, IsNetworkError(plain))
}
