package vault

import (
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// Common errors for broker operations.
var (
	// ErrNotLoggedIn indicates an operation requiring a session token was
	// invoked before a successful login.
	ErrNotLoggedIn = errors.New("vault: client is not logged in")

	// ErrInvalidState indicates a state transition method was invoked
	// against an incompatible session state.
	ErrInvalidState = errors.New("vault: invalid session state")

	// ErrInvalidArgument indicates caller-supplied parameters violate a
	// protocol invariant.
	ErrInvalidArgument = errors.New("vault: invalid argument")

	// ErrPermissionDenied indicates the broker rejected the credentials.
	ErrPermissionDenied = errors.New("vault: permission denied")

	// ErrBadRequest indicates the broker reported validation errors.
	ErrBadRequest = errors.New("vault: bad request")

	// ErrOperationFailed indicates the broker returned an undocumented
	// status code.
	ErrOperationFailed = errors.New("vault: operation failed")

	// ErrDecodingFailed indicates a response body did not match the
	// expected shape.
	ErrDecodingFailed = errors.New("vault: response decoding failed")

	// ErrSessionClosed indicates the client has been closed.
	ErrSessionClosed = errors.New("vault: session closed")
)

// APIError is an error returned by the broker, preserving the wire-level
// status code and the literal error message list from the response body.
type APIError struct {
	// Op is the client operation that failed.
	Op string

	// StatusCode is the raw HTTP status code.
	StatusCode int

	// Errors is the broker-reported error message list.
	Errors []string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("vault %s: status %d: %s", e.Op, e.StatusCode, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("vault %s: status %d", e.Op, e.StatusCode)
}

// Unwrap maps the status code onto the error taxonomy so callers can match
// with errors.Is while still recovering the raw code via errors.As.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 400:
		return ErrBadRequest
	case e.StatusCode >= 401 && e.StatusCode < 500:
		return ErrPermissionDenied
	default:
		return ErrOperationFailed
	}
}

// ConfigurationError indicates invalid client configuration.
type ConfigurationError struct {
	// Field is the configuration field that is invalid.
	Field string

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vault config %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("vault config: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with a cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

// classifyAPIError converts errors from the underlying vault/api transport
// into the client error taxonomy. Response errors carry the raw status code
// and the broker's error message list; everything else passes through
// wrapped with the operation name.
func classifyAPIError(op string, err error) error {
	if err == nil {
		return nil
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return &APIError{
			Op:         op,
			StatusCode: respErr.StatusCode,
			Errors:     respErr.Errors,
		}
	}

	return fmt.Errorf("vault %s: %w", op, err)
}

// IsRetryable returns true if the error is worth retrying. Server errors
// and rate limiting are retryable; client errors and protocol invariant
// violations are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}

	return false
}

// IsBadRequest returns true if the broker reported request validation
// errors.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsAuthError returns true if the error indicates missing or rejected
// credentials.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrPermissionDenied)
}
