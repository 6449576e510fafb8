package vault

// AuthState identifies the session's position in the login pipeline.
// Transitions are strictly forward: Wrapped -> Unwrapped -> Authorized.
// An Authorized session never regresses automatically.
type AuthState int

// Session states.
const (
	// StateWrapped holds credentials whose SecretID is itself a wrapping
	// token, not yet unwrapped.
	StateWrapped AuthState = iota

	// StateUnwrapped holds a usable SecretID, not yet exchanged for a
	// session token.
	StateUnwrapped

	// StateAuthorized holds a live session token (owned by the token
	// store, not the state itself).
	StateAuthorized
)

// String returns the string representation of the state.
func (s AuthState) String() string {
	switch s {
	case StateWrapped:
		return "wrapped"
	case StateUnwrapped:
		return "unwrapped"
	case StateAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// authState is the tagged union behind AuthState. Exactly one variant is
// active at a time; the variants carry the data that phase needs and
// nothing else. The session token of the authorized phase lives in the
// TokenStore, which exclusively owns it.
type authState interface {
	phase() AuthState
}

// stateWrapped holds credentials whose SecretID is a wrapping token.
type stateWrapped struct {
	creds AppRoleCredentials
}

func (stateWrapped) phase() AuthState { return StateWrapped }

// stateUnwrapped holds login-ready credentials. For token authentication
// the credentials are zero; the authenticator carries the token.
type stateUnwrapped struct {
	creds AppRoleCredentials
}

func (stateUnwrapped) phase() AuthState { return StateUnwrapped }

// stateAuthorized marks a live session. The token itself is in the store.
type stateAuthorized struct{}

func (stateAuthorized) phase() AuthState { return StateAuthorized }
