package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

func TestNewCredentialWatcher_Validation(t *testing.T) {
	t.Parallel()

	logger := observability.NopLogger()

	if _, err := NewCredentialWatcher(nil, "role", "/tmp/x", logger); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil client error = %v, want ErrInvalidArgument", err)
	}

	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())

	if _, err := NewCredentialWatcher(client, "", "/tmp/x", logger); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty role error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewCredentialWatcher(client, "role", "", logger); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty path error = %v, want ErrInvalidArgument", err)
	}
}

// TestCredentialWatcher_Redelivery drops a wrapped SecretID into the
// watched file and expects the session to come up authorized.
func TestCredentialWatcher_Redelivery(t *testing.T) {
	t.Parallel()

	// Arrange
	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())

	dir := t.TempDir()
	credFile := filepath.Join(dir, "wrapped-secret-id")

	watcher, err := NewCredentialWatcher(client, broker.roleID, credFile, observability.NopLogger())
	if err != nil {
		t.Fatalf("NewCredentialWatcher() error = %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	// Act: the out-of-band provisioner delivers a wrapped SecretID.
	broker.addWrapped("hvs.delivered", map[string]interface{}{"secret_id": broker.secretID})
	if err := os.WriteFile(credFile, []byte("hvs.delivered\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	// Assert: the watcher re-authenticates within the deadline.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if client.State() == StateAuthorized {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := client.State(); got != StateAuthorized {
		t.Fatalf("State() = %v, want %v after credential delivery", got, StateAuthorized)
	}
	if _, present := client.SessionToken(); !present {
		t.Error("SessionToken() absent after re-authentication")
	}
}

func TestCredentialWatcher_StopIdempotent(t *testing.T) {
	t.Parallel()

	broker := newFakeBroker(t)
	client := newTestClient(t, broker.appRoleConfig())

	watcher, err := NewCredentialWatcher(client, broker.roleID, filepath.Join(t.TempDir(), "f"), observability.NopLogger())
	if err != nil {
		t.Fatalf("NewCredentialWatcher() error = %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := watcher.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
