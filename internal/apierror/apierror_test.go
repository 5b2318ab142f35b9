package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "NotFound Error",
			err:      apierror.NewAPIError(apierror.ErrNotFound, "Job not found", nil),
			expected: http.StatusNotFound,
		},
		{
			name:     "Conflict Error",
			err:      apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil),
			expected: http.StatusConflict,
		},
		{
			name:     "InvalidInput Error",
			err:      apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil),
			expected: http.StatusBadRequest,
		},
		{
			name:     "BadRequest Error",
			err:      apierror.NewAPIError(apierror.ErrBadRequest, "Bad request", nil),
			expected: http.StatusBadRequest,
		},
		{
			name:     "Unauthorized Error",
			err:      apierror.NewAPIError(apierror.ErrUnauthorized, "Unauthorized", nil),
			expected: http.StatusUnauthorized,
		},
		{
			name:     "Forbidden Error",
			err:      apierror.NewAPIError(apierror.ErrForbidden, "Forbidden", nil),
			expected: http.StatusForbidden,
		},
		{
			name:     "InternalServerError",
			err:      apierror.NewAPIError(apierror.ErrInternalServer, "Internal server error", nil),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "Wrapped Conflict",
			err:      fmt.Errorf("reserve: %w", apierror.NewAPIError(apierror.ErrConflict, "duplicate", nil)),
			expected: http.StatusConflict,
		},
		{
			name:     "Unknown Error",
			err:      errors.New("Unknown error"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statusCode := apierror.MapErrorToHTTPStatus(tt.err)
			assert.Equal(t, tt.expected, statusCode)
		})
	}
}

func TestIsCodeAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("save: %w", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save job", cause))

	assert.True(t, apierror.IsCode(err, apierror.ErrInternalServer))
	assert.False(t, apierror.IsCode(err, apierror.ErrConflict))
	assert.ErrorIs(t, err, cause)
	assert.False(t, apierror.IsCode(errors.New("plain"), apierror.ErrInternalServer))
}
