package vault

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestWrap_RequiresLogin verifies that wrap is refused before login
// without touching the network.
func TestWrap_RequiresLogin(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())

	// Act
	_, err := client.Wrapping().Wrap(context.Background(), map[string]string{"key": "value"}, 5*time.Minute)

	// Assert
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Wrap() error = %v, want ErrNotLoggedIn", err)
	}
	if got := broker.totalRequests.Load(); got != 0 {
		t.Errorf("broker requests = %d, want 0", got)
	}
}

func TestWrap_InvalidArguments(t *testing.T) {
	t.Parallel()

	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	authorize(t, client)

	if _, err := client.Wrapping().Wrap(context.Background(), nil, 5*time.Minute); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Wrap(nil data) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := client.Wrapping().Wrap(context.Background(), map[string]string{"k": "v"}, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Wrap(zero ttl) error = %v, want ErrInvalidArgument", err)
	}
}

// TestWrapUnwrap_RoundTrip wraps a payload and redeems the envelope.
func TestWrapUnwrap_RoundTrip(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	authorize(t, client)

	// Act
	envelope, err := client.Wrapping().Wrap(context.Background(), map[string]string{
		"api_key": "super-secret",
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	resp, err := client.Wrapping().Unwrap(context.Background(), envelope.Token)

	// Assert
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if got, _ := resp.Data["api_key"].(string); got != "super-secret" {
		t.Errorf("unwrapped api_key = %q, want super-secret", got)
	}
	if envelope.TTL != 5*time.Minute {
		t.Errorf("envelope TTL = %v, want 5m", envelope.TTL)
	}
}

// TestUnwrap_SingleUse verifies the envelope is destroyed on first
// redemption: a second unwrap of the same token fails.
func TestUnwrap_SingleUse(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	authorize(t, client)

	broker.addWrapped("hvs.one-shot", map[string]interface{}{"secret_id": "s"})

	// Act
	if _, err := client.Wrapping().Unwrap(context.Background(), "hvs.one-shot"); err != nil {
		t.Fatalf("first Unwrap() error = %v", err)
	}
	_, err := client.Wrapping().Unwrap(context.Background(), "hvs.one-shot")

	// Assert
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("second Unwrap() error = %v, want ErrBadRequest", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Errorf("second Unwrap() error = %v, want APIError with status 400", err)
	}
}

// TestUnwrap_SessionTokenRejected verifies that unwrapping the session's
// own token is refused client-side, before any network traffic: that call
// would consume the session itself.
func TestUnwrap_SessionTokenRejected(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	authorize(t, client)
	before := broker.totalRequests.Load()

	// Act
	_, err := client.Wrapping().Unwrap(context.Background(), broker.sessionToken)

	// Assert
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Unwrap(session token) error = %v, want ErrInvalidArgument", err)
	}
	if after := broker.totalRequests.Load(); after != before {
		t.Errorf("broker requests = %d, want %d (rejection must be local)", after, before)
	}
}

// TestUnwrap_NoTokenNoSession verifies that with neither an explicit
// token nor a session there is nothing to unwrap.
func TestUnwrap_NoTokenNoSession(t *testing.T) {
	t.Parallel()

	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())

	_, err := client.Wrapping().Unwrap(context.Background(), "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Unwrap(\"\") error = %v, want ErrInvalidArgument", err)
	}
	if got := broker.totalRequests.Load(); got != 0 {
		t.Errorf("broker requests = %d, want 0", got)
	}
}

// TestUnwrap_BeforeLogin verifies the pre-login path where the wrapping
// token itself is the bearer credential.
func TestUnwrap_BeforeLogin(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	broker.addWrapped("hvs.pre-login", map[string]interface{}{"secret_id": "delivered"})

	// Act
	resp, err := client.Wrapping().Unwrap(context.Background(), "hvs.pre-login")

	// Assert
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if got, _ := resp.Data["secret_id"].(string); got != "delivered" {
		t.Errorf("unwrapped secret_id = %q, want delivered", got)
	}
}

// TestRewrap rotates an envelope: the old token dies, the new one works.
func TestRewrap(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	authorize(t, client)
	broker.addWrapped("hvs.stale", map[string]interface{}{"secret_id": "s"})

	// Act
	fresh, err := client.Wrapping().Rewrap(context.Background(), "hvs.stale")

	// Assert
	if err != nil {
		t.Fatalf("Rewrap() error = %v", err)
	}
	if fresh.Token == "" || fresh.Token == "hvs.stale" {
		t.Errorf("Rewrap() token = %q, want a fresh token", fresh.Token)
	}

	if _, err := client.Wrapping().Unwrap(context.Background(), "hvs.stale"); err == nil {
		t.Error("Unwrap(old token) error = nil, want failure after rewrap")
	}
	if _, err := client.Wrapping().Unwrap(context.Background(), fresh.Token); err != nil {
		t.Errorf("Unwrap(fresh token) error = %v", err)
	}
}

func TestRewrap_RequiresLogin(t *testing.T) {
	t.Parallel()

	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())

	_, err := client.Wrapping().Rewrap(context.Background(), "hvs.any")
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Rewrap() error = %v, want ErrNotLoggedIn", err)
	}
	if got := broker.totalRequests.Load(); got != 0 {
		t.Errorf("broker requests = %d, want 0", got)
	}
}

// TestLookup reads envelope metadata without consuming the envelope.
func TestLookup(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())
	authorize(t, client)
	broker.addWrapped("hvs.inspect-me", map[string]interface{}{"secret_id": "s"})

	// Act
	info, err := client.Wrapping().Lookup(context.Background(), "hvs.inspect-me")

	// Assert
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if info.CreationTTL != 300*time.Second {
		t.Errorf("CreationTTL = %v, want 300s", info.CreationTTL)
	}
	if info.CreationPath != "sys/wrapping/wrap" {
		t.Errorf("CreationPath = %q, want sys/wrapping/wrap", info.CreationPath)
	}
	want := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	if !info.CreationTime.Equal(want) {
		t.Errorf("CreationTime = %v, want %v", info.CreationTime, want)
	}

	// The envelope survives lookup.
	if _, err := client.Wrapping().Unwrap(context.Background(), "hvs.inspect-me"); err != nil {
		t.Errorf("Unwrap() after Lookup error = %v", err)
	}
}

func TestParseSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   interface{}
		want time.Duration
	}{
		{"json number", json.Number("300"), 300 * time.Second},
		{"float", float64(1.5), 1500 * time.Millisecond},
		{"int", 60, time.Minute},
		{"duration string", "5m", 5 * time.Minute},
		{"garbage", struct{}{}, 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseSeconds(tt.in); got != tt.want {
				t.Errorf("parseSeconds(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
