package auth

import "context"

// MockAuthenticator returns a fixed token and records calls, for tests
// of callers (C7) that only depend on the Authenticator interface.
type MockAuthenticator struct {
	Token          string
	LogoutCalls    int
	DeleteCalls    int
	AuthenticateFn func(ctx context.Context) (string, error)
}

// NewMockAuthenticator returns a MockAuthenticator fixed to token.
func NewMockAuthenticator(token string) *MockAuthenticator {
	return &MockAuthenticator{Token: token}
}

// Authenticate returns Token, or the result of AuthenticateFn if set.
func (a *MockAuthenticator) Authenticate(ctx context.Context) (string, error) {
	if a.AuthenticateFn != nil {
		return a.AuthenticateFn(ctx)
	}
	return a.Token, nil
}

// Logout records the call.
func (a *MockAuthenticator) Logout(ctx context.Context) error {
	a.LogoutCalls++
	return nil
}

// Delete records the call.
func (a *MockAuthenticator) Delete(ctx context.Context) error {
	a.DeleteCalls++
	return nil
}
