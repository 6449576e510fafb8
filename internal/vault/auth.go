package vault

import (
	"context"
	"errors"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// ErrInvalidAuthConfig is returned when auth configuration is invalid.
var ErrInvalidAuthConfig = errors.New("invalid auth configuration")

// Authenticator encapsulates exactly one login mechanism and produces a
// bearer session token. Implementations never retry; retry policy is a
// caller concern.
type Authenticator interface {
	// Login authenticates with the broker and returns the auth secret.
	// The returned secret carries the session token along with policy
	// list, lease duration, entity id, renewability, and use-count
	// metadata.
	Login(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error)

	// Name returns the name of the authentication method.
	Name() string
}

// AppRoleAuthenticator performs an AppRole login exchange of
// (RoleID, SecretID) for a freshly minted session token.
type AppRoleAuthenticator struct {
	creds     AppRoleCredentials
	mountPath string
}

// NewAppRoleAuthenticator creates a new AppRole authenticator.
func NewAppRoleAuthenticator(creds AppRoleCredentials, mountPath string) (*AppRoleAuthenticator, error) {
	if creds.RoleID == "" {
		return nil, fmt.Errorf("%w: roleID is required", ErrInvalidAuthConfig)
	}
	if creds.SecretID == "" {
		return nil, fmt.Errorf("%w: secretID is required", ErrInvalidAuthConfig)
	}
	if mountPath == "" {
		mountPath = DefaultAppRoleMountPath
	}

	return &AppRoleAuthenticator{
		creds:     creds,
		mountPath: mountPath,
	}, nil
}

// Login implements Authenticator.
func (a *AppRoleAuthenticator) Login(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error) {
	if client == nil {
		return nil, fmt.Errorf("approle login: %w: vault client is nil", ErrInvalidArgument)
	}

	path := fmt.Sprintf("auth/%s/login", a.mountPath)
	data := map[string]interface{}{
		"role_id":   a.creds.RoleID,
		"secret_id": a.creds.SecretID,
	}

	secret, err := client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return nil, classifyAPIError("approle_login", err)
	}

	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, fmt.Errorf("approle login: %w: response carries no auth block", ErrDecodingFailed)
	}

	return secret, nil
}

// Name implements Authenticator.
func (a *AppRoleAuthenticator) Name() string {
	return "approle"
}

// TokenAuthenticator adopts an existing session token. The supplied token
// is treated as already authoritative; no network call is made.
type TokenAuthenticator struct {
	token string
}

// NewTokenAuthenticator creates a new token authenticator.
func NewTokenAuthenticator(token string) (*TokenAuthenticator, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidAuthConfig)
	}
	return &TokenAuthenticator{token: token}, nil
}

// Login implements Authenticator. It synthesizes an auth response shaped
// like the other methods so the session machinery stays uniform.
func (a *TokenAuthenticator) Login(_ context.Context, _ *vaultapi.Client) (*vaultapi.Secret, error) {
	return &vaultapi.Secret{
		Auth: &vaultapi.SecretAuth{
			ClientToken: a.token,
			Renewable:   false,
		},
	}, nil
}

// Name implements Authenticator.
func (a *TokenAuthenticator) Name() string {
	return "token"
}

// Ensure implementations satisfy the interface.
var (
	_ Authenticator = (*AppRoleAuthenticator)(nil)
	_ Authenticator = (*TokenAuthenticator)(nil)
)
