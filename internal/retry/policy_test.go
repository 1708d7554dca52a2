package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"whatsbot/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"not found", errors.NewHTTPError(http.MethodGet, "/api/contacts/x", http.StatusNotFound, ""), false},
		{"bad request", errors.NewHTTPError(http.MethodPost, "/api/contacts", http.StatusBadRequest, ""), false},
		{"unprocessable", errors.NewHTTPError(http.MethodPost, "/api/contacts", http.StatusUnprocessableEntity, ""), false},
		{"request timeout", errors.NewHTTPError(http.MethodGet, "/api/analytics", http.StatusRequestTimeout, ""), true},
		{"too many requests", errors.NewHTTPError(http.MethodGet, "/api/analytics", http.StatusTooManyRequests, ""), true},
		{"service unavailable", errors.NewHTTPError(http.MethodGet, "/api/analytics", http.StatusServiceUnavailable, ""), true},
		{"wrapped not found", fmt.Errorf("load: %w", errors.NewHTTPError(http.MethodGet, "/x", 404, "")), false},
		{"network", errors.NewNetworkError(http.MethodGet, "/health", stderrors.New("refused")), true},
		{"decode", errors.NewDecodeError("/api/analytics", stderrors.New("bad json")), false},
		{"validation", errors.NewValidationError("title", "", "is required"), false},
		{"context canceled", context.Canceled, false},
		{"caller deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"caller gave up", errors.NewAbortedError(http.MethodGet, "/api/analytics", context.DeadlineExceeded), false},
		{"client timeout", errors.NewNetworkError(http.MethodGet, "/api/analytics",
			fmt.Errorf("Client.Timeout exceeded while awaiting headers: %w", context.DeadlineExceeded)), true},
		{"circuit open", errors.WrapRetryable(stderrors.New("circuit breaker is open"), errors.ErrCodeNetwork, "backend unavailable"), true},
		{"plain", stderrors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestRetryWithPredicate_NotFoundIsNotRetried(t *testing.T) {
	attempts := 0
	err := NewBackoff(fastConfig(4)).RetryWithPredicate(context.Background(), func() error {
		attempts++
		return errors.NewHTTPError(http.MethodGet, "/api/contacts/1", http.StatusNotFound, "")
	}, IsRetryableError)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.IsNotFound(err))
}

func TestRetryWithPredicate_ServiceUnavailableRetriedThreeTimes(t *testing.T) {
	attempts := 0
	err := NewBackoff(fastConfig(4)).RetryWithPredicate(context.Background(), func() error {
		attempts++
		return errors.NewHTTPError(http.MethodGet, "/api/analytics", http.StatusServiceUnavailable, "")
	}, IsRetryableError)

	assert.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, http.StatusServiceUnavailable, errors.StatusCode(err))
}
