// Package auth provides the three authentication adapters consumed by
// internal/upload (C7): Static, OAuth/OIDC with PKCE, and Mock.
package auth

import (
	"context"
	"errors"
)

// Authenticator is the seam C7 uses to obtain a bearer token for the
// Initiation and Transfer requests, and to react to a 401 by forcing a
// refresh. Only Authenticate is consumed by C7; Logout and Delete are
// host-facing account-management operations (spec.md §4.8).
type Authenticator interface {
	// Authenticate returns a current bearer token, refreshing it first
	// if the adapter judges it stale.
	Authenticate(ctx context.Context) (string, error)

	// Logout discards any locally held credential state.
	Logout(ctx context.Context) error

	// Delete issues the account-deletion request to the identity
	// provider, where supported.
	Delete(ctx context.Context) error
}

// ErrNotImplemented is returned by adapter operations the variant does
// not support — e.g. Static's Delete. Static has no refresh operation and
// does not implement ForceRefresh.
var ErrNotImplemented = errors.New("auth: not implemented")
