package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

const (
	wrapPath   = "sys/wrapping/wrap"
	rewrapPath = "sys/wrapping/rewrap"
)

// WrappingClient speaks the broker's response-wrapping protocol: sealing
// data into single-use envelopes and redeeming them exactly once.
type WrappingClient interface {
	// Wrap seals data into a new single-use envelope with the given TTL.
	// Requires an authorized session.
	Wrap(ctx context.Context, data map[string]string, ttl time.Duration) (*WrappedToken, error)

	// Unwrap redeems a wrapping token, consuming it. With an empty token
	// the session's own bearer token is treated as the envelope. Passing
	// the session token explicitly is rejected before any network traffic:
	// that call would consume the session itself.
	Unwrap(ctx context.Context, token string) (*UnwrapResponse, error)

	// Rewrap rotates an unconsumed envelope into a fresh one with a new
	// TTL, invalidating the old token. Requires an authorized session.
	Rewrap(ctx context.Context, token string) (*WrappedToken, error)

	// Lookup returns envelope metadata without consuming it.
	Lookup(ctx context.Context, token string) (*WrappedTokenInfo, error)
}

// UnwrapResponse is the payload recovered from a wrapping envelope.
// Exactly one of Data and Auth is typically populated, depending on
// whether the envelope wrapped plain data or an auth response.
type UnwrapResponse struct {
	// Data holds the wrapped key/value payload.
	Data map[string]interface{}

	// Auth holds the wrapped auth block, when the envelope wrapped a
	// login response.
	Auth *vaultapi.SecretAuth
}

// wrappingClient implements WrappingClient on top of the broker client's
// transport, limiter, and breaker.
type wrappingClient struct {
	c *brokerClient
}

func newWrappingClient(c *brokerClient) *wrappingClient {
	return &wrappingClient{c: c}
}

// Wrap seals data into a new single-use envelope.
func (w *wrappingClient) Wrap(ctx context.Context, data map[string]string, ttl time.Duration) (*WrappedToken, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wrap: %w: data is empty", ErrInvalidArgument)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("wrap: %w: ttl must be positive", ErrInvalidArgument)
	}

	bearer, ok := w.c.store.Read()
	if !ok {
		return nil, fmt.Errorf("wrap: %w", ErrNotLoggedIn)
	}

	// The wrap TTL travels in a request header, which the api client only
	// sets through its wrapping lookup hook. Use a clone so the hook does
	// not leak onto unrelated calls.
	wc, err := w.c.apiClone(bearer)
	if err != nil {
		return nil, err
	}
	wc.SetWrappingLookupFunc(func(operation, path string) string {
		if path == wrapPath {
			return ttl.String()
		}
		return ""
	})

	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}

	var secret *vaultapi.Secret
	err = w.c.execute(ctx, "wrap", func() error {
		s, err := wc.Logical().WriteWithContext(ctx, wrapPath, payload)
		if err != nil {
			return classifyAPIError("wrap", err)
		}
		secret = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := wrappedTokenFromSecret("wrap", secret)
	if err != nil {
		return nil, err
	}

	w.c.logger.Debug("wrapped data into envelope",
		observability.String("token", redactToken(token.Token)),
		observability.Duration("ttl", token.TTL),
	)

	return token, nil
}

// Unwrap redeems a wrapping token, consuming it.
func (w *wrappingClient) Unwrap(ctx context.Context, token string) (*UnwrapResponse, error) {
	token = strings.TrimSpace(token)
	bearer, loggedIn := w.c.store.Read()

	// Both rejections happen before any network traffic.
	if token == "" && !loggedIn {
		w.c.metrics.RecordUnwrapReject()
		return nil, fmt.Errorf("unwrap: %w: no wrapping token supplied and no session held", ErrInvalidArgument)
	}
	if token != "" && loggedIn && token == bearer {
		w.c.metrics.RecordUnwrapReject()
		return nil, fmt.Errorf("unwrap: %w: wrapping token equals the session token", ErrInvalidArgument)
	}

	var secret *vaultapi.Secret
	err := w.c.execute(ctx, "unwrap", func() error {
		var err error
		if token != "" && !loggedIn {
			// Pre-login unwrap: the wrapping token itself is the bearer
			// credential for this one call.
			uc, cerr := w.c.apiClone(token)
			if cerr != nil {
				return cerr
			}
			secret, err = uc.Logical().UnwrapWithContext(ctx, "")
		} else {
			secret, err = w.c.api.Logical().UnwrapWithContext(ctx, token)
		}
		if err != nil {
			return classifyAPIError("unwrap", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if secret == nil || (secret.Data == nil && secret.Auth == nil) {
		return nil, fmt.Errorf("unwrap: %w: response carries neither data nor auth", ErrDecodingFailed)
	}

	w.c.logger.Debug("unwrapped envelope",
		observability.Bool("has_data", secret.Data != nil),
		observability.Bool("has_auth", secret.Auth != nil),
	)

	return &UnwrapResponse{
		Data: secret.Data,
		Auth: secret.Auth,
	}, nil
}

// Rewrap rotates an unconsumed envelope into a fresh one.
func (w *wrappingClient) Rewrap(ctx context.Context, token string) (*WrappedToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("rewrap: %w: token is required", ErrInvalidArgument)
	}
	if _, ok := w.c.store.Read(); !ok {
		return nil, fmt.Errorf("rewrap: %w", ErrNotLoggedIn)
	}

	var secret *vaultapi.Secret
	err := w.c.execute(ctx, "rewrap", func() error {
		s, err := w.c.api.Logical().WriteWithContext(ctx, rewrapPath, map[string]interface{}{
			"token": token,
		})
		if err != nil {
			return classifyAPIError("rewrap", err)
		}
		secret = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	fresh, err := wrappedTokenFromSecret("rewrap", secret)
	if err != nil {
		return nil, err
	}

	w.c.logger.Debug("rewrapped envelope",
		observability.String("token", redactToken(fresh.Token)),
		observability.Duration("ttl", fresh.TTL),
	)

	return fresh, nil
}

// Lookup returns envelope metadata without consuming it.
func (w *wrappingClient) Lookup(ctx context.Context, token string) (*WrappedTokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("lookup: %w: token is required", ErrInvalidArgument)
	}

	// Lookup is non-destructive, so it works both ways: an authorized
	// session inspects any envelope, and an unauthorized holder may
	// self-inspect using the envelope as bearer.
	bearer, loggedIn := w.c.store.Read()
	api := w.c.api
	body := map[string]interface{}{"token": token}
	if !loggedIn {
		uc, err := w.c.apiClone(token)
		if err != nil {
			return nil, err
		}
		api = uc
		body = nil
	} else if token == bearer {
		return nil, fmt.Errorf("lookup: %w: token equals the session token", ErrInvalidArgument)
	}

	var secret *vaultapi.Secret
	err := w.c.executeWithRetry(ctx, "lookup_wrapping", func() error {
		s, err := api.Logical().WriteWithContext(ctx, "sys/wrapping/lookup", body)
		if err != nil {
			return classifyAPIError("lookup_wrapping", err)
		}
		secret = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("lookup: %w: response carries no data", ErrDecodingFailed)
	}

	info := &WrappedTokenInfo{
		CreationTTL:  parseSeconds(secret.Data["creation_ttl"]),
		CreationTime: parseTimestamp(secret.Data["creation_time"]),
		CreationPath: stringValue(secret.Data["creation_path"]),
	}
	return info, nil
}

// wrappedTokenFromSecret extracts the envelope descriptor from a wrap or
// rewrap response.
func wrappedTokenFromSecret(op string, secret *vaultapi.Secret) (*WrappedToken, error) {
	if secret == nil || secret.WrapInfo == nil || secret.WrapInfo.Token == "" {
		return nil, fmt.Errorf("%s: %w: response carries no wrap_info", op, ErrDecodingFailed)
	}
	wi := secret.WrapInfo
	return &WrappedToken{
		Token:           wi.Token,
		Accessor:        wi.Accessor,
		TTL:             time.Duration(wi.TTL) * time.Second,
		CreationTime:    wi.CreationTime,
		CreationPath:    wi.CreationPath,
		WrappedAccessor: wi.WrappedAccessor,
	}, nil
}

// parseSeconds converts a JSON number of seconds into a duration. The
// broker encodes durations as json.Number; tests and older responses may
// carry float64 or int.
func parseSeconds(v interface{}) time.Duration {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Duration(i) * time.Second
		}
		if f, err := n.Float64(); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	case float64:
		return time.Duration(n * float64(time.Second))
	case int:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	case string:
		if d, err := time.ParseDuration(n); err == nil {
			return d
		}
	}
	return 0
}

// parseTimestamp parses an RFC 3339 timestamp value.
func parseTimestamp(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// stringValue returns v as a string, or empty when it is not one.
func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// Ensure implementation satisfies the interface.
var _ WrappingClient = (*wrappingClient)(nil)
