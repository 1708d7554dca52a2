package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewHTTPError classifies a non-2xx backend response. 5xx, 408 and 429 are
// retryable; every other status fails immediately.
func NewHTTPError(method, endpoint string, statusCode int, detail string) *AppError {
	var code ErrorCode
	var userMsg string

	switch {
	case statusCode == http.StatusNotFound:
		code = ErrCodeNotFound
		userMsg = "The requested resource was not found"
	case statusCode == http.StatusTooManyRequests:
		code = ErrCodeRateLimit
		userMsg = "Too many requests, please try again later"
	case statusCode == http.StatusRequestTimeout:
		code = ErrCodeTimeout
		userMsg = "The backend timed out, please try again"
	case statusCode >= 500:
		code = ErrCodeHTTPServer
		userMsg = "The backend is unavailable, please try again"
	default:
		code = ErrCodeHTTPClient
		userMsg = "The request was rejected by the backend"
	}

	message := fmt.Sprintf("%s %s returned status %d", method, endpoint, statusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
		if code == ErrCodeHTTPClient || code == ErrCodeNotFound {
			userMsg = detail
		}
	}

	appErr := New(code, message).
		WithContext("method", method).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode).
		WithUserMessage(userMsg)
	appErr.StatusCode = statusCode
	appErr.Retryable = IsRetryableStatus(statusCode)

	return appErr
}

// IsRetryableStatus reports whether a response status should be retried.
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
}

// NewNetworkError wraps a transport failure. Transport failures are retryable.
func NewNetworkError(method, endpoint string, err error) *AppError {
	return WrapRetryable(err, ErrCodeNetwork, fmt.Sprintf("%s %s failed", method, endpoint)).
		WithContext("method", method).
		WithContext("endpoint", endpoint).
		WithUserMessage("Could not reach the backend, check your connection and try again")
}

// NewAbortedError wraps a call the caller gave up on through its context.
// It is never retryable.
func NewAbortedError(method, endpoint string, err error) *AppError {
	return Wrap(err, ErrCodeTimeout, fmt.Sprintf("%s %s aborted", method, endpoint)).
		WithContext("method", method).
		WithContext("endpoint", endpoint).
		WithUserMessage("The request was cancelled before the backend answered")
}

// NewDecodeError wraps a response body that could not be decoded.
func NewDecodeError(endpoint string, err error) *AppError {
	return Wrap(err, ErrCodeDecode, "failed to decode response").
		WithContext("endpoint", endpoint).
		WithUserMessage("The backend returned an unexpected response")
}

// NewStorageError wraps a local storage failure.
func NewStorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Local storage operation failed")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	appErr := New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
	appErr.StatusCode = http.StatusNotFound
	return appErr
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	code := GetCode(err)

	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeNetwork, ErrCodeHTTPServer, ErrCodeDecode:
		return http.StatusBadGateway
	case ErrCodeHTTPClient:
		if status := StatusCode(err); status >= 400 && status < 500 {
			return status
		}
		return http.StatusBadRequest
	case ErrCodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON error body served by the dashboard server
type HTTPErrorResponse struct {
	Error struct {
		Code      ErrorCode   `json:"code"`
		Message   string      `json:"message"`
		Retryable bool        `json:"retryable"`
		Context   interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	if appErr, ok := As(err); ok {
		response.Error.Code = appErr.Code
		response.Error.Message = GetUserMessage(err)
		response.Error.Retryable = appErr.Retryable
		if len(appErr.Context) > 0 {
			publicContext := make(map[string]interface{})
			for k, v := range appErr.Context {
				if k != "value" {
					publicContext[k] = v
				}
			}
			if len(publicContext) > 0 {
				response.Error.Context = publicContext
			}
		}
	} else {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
	}

	return response
}
