package errors

import "fmt"

// ErrorCode represents an answerflow error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrRateLimited      ErrorCode = "RATE_LIMITED"      // 429
	ErrTransport        ErrorCode = "TRANSPORT"         // 502
	ErrMalformedPayload ErrorCode = "MALFORMED_PAYLOAD" // 502
	ErrRefreshFailed    ErrorCode = "REFRESH_FAILED"    // 503
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// FlowError represents a structured error with code, status, and details.
type FlowError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *FlowError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *FlowError {
	return &FlowError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(identifier string) *FlowError {
	return &FlowError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewRateLimited creates a 429 error for a caller that exceeded its request rate.
func NewRateLimited(identifier string) *FlowError {
	return &FlowError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: fmt.Sprintf("too many requests from %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewTransport creates a 502 error for a failed call to an upstream service.
// A zero status means the request never produced a response (dial, network, timeout).
func NewTransport(endpoint string, status int, cause error) *FlowError {
	msg := fmt.Sprintf("%s: upstream returned status %d", endpoint, status)
	if status == 0 && cause != nil {
		msg = fmt.Sprintf("%s: %v", endpoint, cause)
	}
	details := map[string]any{"endpoint": endpoint}
	if status != 0 {
		details["upstream_status"] = status
	}
	return &FlowError{
		Code:    ErrTransport,
		Status:  502,
		Message: msg,
		Details: details,
		cause:   cause,
	}
}

// NewMalformedPayload creates a 502 error for an upstream body that could not be decoded.
func NewMalformedPayload(endpoint string, cause error) *FlowError {
	msg := fmt.Sprintf("%s: malformed payload", endpoint)
	if cause != nil {
		msg = fmt.Sprintf("%s: malformed payload: %v", endpoint, cause)
	}
	return &FlowError{
		Code:    ErrMalformedPayload,
		Status:  502,
		Message: msg,
		Details: map[string]any{"endpoint": endpoint},
		cause:   cause,
	}
}

// NewRefreshFailed creates a 503 error for a history refresh that did not complete.
func NewRefreshFailed(userID string, cause error) *FlowError {
	return &FlowError{
		Code:    ErrRefreshFailed,
		Status:  503,
		Message: fmt.Sprintf("history refresh failed for user %s", userID),
		Details: map[string]any{"user_id": userID},
		cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *FlowError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &FlowError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is a FlowError with the given code.
func Is(err error, code ErrorCode) bool {
	if fErr, ok := err.(*FlowError); ok {
		return fErr.Code == code
	}
	return false
}
