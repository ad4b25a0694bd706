package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassesThrough(t *testing.T) {
	original := NewForbidden("nope", map[string]any{"role": "worker"})

	de := ToDomainError(original)
	require.NotNil(t, de)
	assert.Equal(t, "FORBIDDEN", de.Code)
	assert.Equal(t, http.StatusForbidden, de.HTTPStatus)

	// Wrapped domain errors unwrap to the same taxonomy entry.
	de = ToDomainError(fmt.Errorf("handler: %w", original))
	require.NotNil(t, de)
	assert.Equal(t, "FORBIDDEN", de.Code)
}

func TestToDomainErrorCollapsesUnknown(t *testing.T) {
	cause := errors.New("connection reset")

	de := ToDomainError(cause)
	require.NotNil(t, de)
	assert.Equal(t, "INTERNAL_ERROR", de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)

	assert.Nil(t, ToDomainError(nil))
}
