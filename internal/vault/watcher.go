package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

// CredentialWatcher watches a file into which an out-of-band provisioner
// drops a freshly wrapped SecretID, and restarts the session's login
// pipeline whenever new material arrives. This is how a session recovers
// after its token and SecretID have both expired: the trusted deliverer
// writes a new wrapped token and the watcher picks it up.
type CredentialWatcher struct {
	client Client
	roleID string
	path   string
	logger observability.Logger

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	started   bool
	stopped   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewCredentialWatcher creates a watcher for the given wrapped SecretID file.
func NewCredentialWatcher(client Client, roleID, path string, logger observability.Logger) (*CredentialWatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("credential watcher: %w: client is nil", ErrInvalidArgument)
	}
	if roleID == "" || path == "" {
		return nil, fmt.Errorf("credential watcher: %w: role id and path are required", ErrInvalidArgument)
	}

	return &CredentialWatcher{
		client: client,
		roleID: roleID,
		path:   filepath.Clean(path),
		logger: logger.With(
			observability.String("component", "credential_watcher"),
			observability.String("path", path),
		),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start begins watching the credential file. The watch is placed on the
// parent directory because provisioners typically replace the file
// atomically via rename, which a direct file watch misses.
func (w *CredentialWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credential watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("credential watcher: %w", err)
	}

	w.watcher = fsw
	w.started = true
	go w.loop()

	w.logger.Info("credential watcher started")
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *CredentialWatcher) Stop() error {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.stoppedCh:
	case <-time.After(DefaultCloseTimeout):
		w.logger.Warn("timeout waiting for credential watcher to stop")
	}

	return w.watcher.Close()
}

func (w *CredentialWatcher) loop() {
	defer close(w.stoppedCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("credential watcher error", observability.Error(err))
		}
	}
}

// reload reads the new wrapped SecretID and restarts the login pipeline.
func (w *CredentialWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("failed to read credential file", observability.Error(err))
		return
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		w.logger.Debug("credential file is empty, ignoring")
		return
	}

	if err := w.client.ResetWrapped(AppRoleCredentials{
		RoleID:   w.roleID,
		SecretID: token,
	}); err != nil {
		w.logger.Warn("failed to restart login pipeline", observability.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRenewalTimeout)
	defer cancel()

	if !w.client.Authenticate(ctx) {
		w.logger.Warn("re-authentication with delivered credentials failed")
		return
	}

	w.logger.Info("re-authenticated with freshly delivered credentials")
}
