package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	vaultapi "github.com/hashicorp/vault/api"
)

func TestAPIError_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{400, ErrBadRequest},
		{401, ErrPermissionDenied},
		{403, ErrPermissionDenied},
		{404, ErrPermissionDenied},
		{429, ErrOperationFailed},
		{500, ErrOperationFailed},
		{502, ErrOperationFailed},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			t.Parallel()

			err := &APIError{Op: "test", StatusCode: tt.status}
			if !errors.Is(err, tt.want) {
				t.Errorf("APIError{%d} does not match %v", tt.status, tt.want)
			}
		})
	}
}

func TestAPIError_PreservesWireDetails(t *testing.T) {
	t.Parallel()

	err := classifyAPIError("login", &vaultapi.ResponseError{
		StatusCode: http.StatusForbidden,
		Errors:     []string{"permission denied", "invalid secret id"},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("classifyAPIError() = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
	}
	if len(apiErr.Errors) != 2 || apiErr.Errors[1] != "invalid secret id" {
		t.Errorf("Errors = %v, want both broker messages", apiErr.Errors)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("classified 403 does not match ErrPermissionDenied")
	}
}

func TestClassifyAPIError_PassThrough(t *testing.T) {
	t.Parallel()

	if classifyAPIError("op", nil) != nil {
		t.Error("classifyAPIError(nil) != nil")
	}

	cause := context.DeadlineExceeded
	err := classifyAPIError("op", cause)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("classifyAPIError(deadline) = %v, want wrapped deadline error", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("transport error classified as APIError")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &APIError{StatusCode: 500}, true},
		{"bad gateway", &APIError{StatusCode: 502}, true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"forbidden", &APIError{StatusCode: 403}, false},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"sentinel", ErrNotLoggedIn, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsBadRequest(t *testing.T) {
	t.Parallel()

	if !IsBadRequest(&APIError{StatusCode: 400}) {
		t.Error("IsBadRequest(400) = false")
	}
	if IsBadRequest(&APIError{StatusCode: 403}) {
		t.Error("IsBadRequest(403) = true")
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	if !IsAuthError(ErrNotLoggedIn) {
		t.Error("IsAuthError(ErrNotLoggedIn) = false")
	}
	if !IsAuthError(&APIError{StatusCode: 403}) {
		t.Error("IsAuthError(403) = false")
	}
	if IsAuthError(&APIError{StatusCode: 500}) {
		t.Error("IsAuthError(500) = true")
	}
	if IsAuthError(nil) {
		t.Error("IsAuthError(nil) = true")
	}
}

func TestConfigurationError(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying")
	err := NewConfigurationErrorWithCause("address", "bad address", cause)
	if !errors.Is(err, cause) {
		t.Error("ConfigurationError does not unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("ConfigurationError.Error() is empty")
	}
}

func TestRedactToken(t *testing.T) {
	t.Parallel()

	if got := redactToken("hvs.abcdef123456"); got != "hvs.****" {
		t.Errorf("redactToken() = %q, want hvs.****", got)
	}
	if got := redactToken("ab"); got != "****" {
		t.Errorf("redactToken(short) = %q, want ****", got)
	}
}
