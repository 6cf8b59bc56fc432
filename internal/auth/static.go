package auth

import "context"

// StaticAuthenticator wraps a pre-obtained bearer token injected by the
// host application. It never refreshes: a token rotation is the host's
// responsibility, performed by constructing a new StaticAuthenticator.
type StaticAuthenticator struct {
	token string
}

// NewStaticAuthenticator wraps token.
func NewStaticAuthenticator(token string) *StaticAuthenticator {
	return &StaticAuthenticator{token: token}
}

// Authenticate returns the wrapped token unconditionally.
func (a *StaticAuthenticator) Authenticate(ctx context.Context) (string, error) {
	return a.token, nil
}

// Logout is a no-op; there is no provider session to tear down.
func (a *StaticAuthenticator) Logout(ctx context.Context) error {
	return nil
}

// Delete always fails: Static has no identity provider to address.
func (a *StaticAuthenticator) Delete(ctx context.Context) error {
	return ErrNotImplemented
}
