package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("expired")

	for name, tc := range map[string]struct {
		err     *ServiceError
		code    ErrorCode
		status  int
		message string
	}{
		"bad request":   {BadRequest("Invalid input"), CodeBadRequest, http.StatusBadRequest, "Invalid input"},
		"unauthorized":  {Unauthorized("Unauthorized"), CodeUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		"invalid token": {InvalidToken(cause), CodeInvalidToken, http.StatusUnauthorized, "Invalid token"},
		"upstream":      {Upstream("Failed to create items", cause), CodeUpstreamFailure, http.StatusInternalServerError, "Failed to create items"},
		"internal":      {Internal(cause), CodeInternal, http.StatusInternalServerError, "Internal server error"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
			assert.Equal(t, tc.message, tc.err.Message)
		})
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Internal(cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithDetails(t *testing.T) {
	err := RateLimitExceeded(20, "1s")

	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus)
	assert.Equal(t, 20, err.Details["limit"])
	assert.Equal(t, "1s", err.Details["window"])
}
