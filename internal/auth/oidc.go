package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/motiontrace/capture-sdk/internal/httputil"
)

// OIDCAuthenticator implements the OAuth/OIDC-with-PKCE variant of C8: it
// owns the stored refresh token and exchanges it for an access token on
// demand. The authorisation-code leg itself (presenting a login page) is
// the host application's job — AuthCodeURL hands it the URL and PKCE
// verifier, CompleteAuthCode hands back the resulting tokens.
type OIDCAuthenticator struct {
	config         *oauth2.Config
	provider       *oidc.Provider
	httpClient     httputil.HTTPClient
	userAccountURL string

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOIDCAuthenticator discovers the provider at issuerURL and builds an
// adapter for the authorisation-code-with-PKCE flow. userAccountURL is
// the endpoint Delete issues its HTTP DELETE against.
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID, redirectURL, userAccountURL string, httpClient httputil.HTTPClient) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("auth: discover oidc provider: %w", err)
	}
	return &OIDCAuthenticator{
		config: &oauth2.Config{
			ClientID:    clientID,
			Endpoint:    provider.Endpoint(),
			RedirectURL: redirectURL,
			Scopes:      []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
		},
		provider:       provider,
		httpClient:     httpClient,
		userAccountURL: userAccountURL,
	}, nil
}

// AuthCodeURL returns the provider login URL and the PKCE code verifier
// the host must pass back to CompleteAuthCode alongside the resulting
// authorisation code.
func (a *OIDCAuthenticator) AuthCodeURL(state string) (url, codeVerifier string) {
	codeVerifier = oauth2.GenerateVerifier()
	url = a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(codeVerifier))
	return url, codeVerifier
}

// CompleteAuthCode exchanges an authorisation code for tokens and stores
// them, ready for Authenticate.
func (a *OIDCAuthenticator) CompleteAuthCode(ctx context.Context, code, codeVerifier string) error {
	token, err := a.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return fmt.Errorf("auth: exchange authorisation code: %w", err)
	}
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
	return nil
}

// Authenticate returns a valid access token, transparently refreshing
// via the stored refresh token when the cached one has expired.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context) (string, error) {
	a.mu.Lock()
	current := a.token
	a.mu.Unlock()
	if current == nil {
		return "", fmt.Errorf("auth: no stored session; CompleteAuthCode has not run")
	}

	refreshed, err := a.config.TokenSource(ctx, current).Token()
	if err != nil {
		return "", fmt.Errorf("auth: refresh access token: %w", err)
	}

	a.mu.Lock()
	a.token = refreshed
	a.mu.Unlock()
	return refreshed.AccessToken, nil
}

// ForceRefresh discards the cached token's validity and obtains a new
// access token from the refresh token regardless of the cached token's
// expiry, for C7 to call after a 401 (spec.md §4.7 step 2).
func (a *OIDCAuthenticator) ForceRefresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	current := a.token
	a.mu.Unlock()
	if current == nil {
		return "", fmt.Errorf("auth: no stored session; CompleteAuthCode has not run")
	}
	stale := *current
	stale.Expiry = time.Now().Add(-time.Minute)

	refreshed, err := a.config.TokenSource(ctx, &stale).Token()
	if err != nil {
		return "", fmt.Errorf("auth: force refresh access token: %w", err)
	}

	a.mu.Lock()
	a.token = refreshed
	a.mu.Unlock()
	return refreshed.AccessToken, nil
}

// Logout discards the locally stored token, without contacting the
// provider — the refresh token remains valid server-side until it
// expires or Delete is called.
func (a *OIDCAuthenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.token = nil
	a.mu.Unlock()
	return nil
}

// Delete issues an HTTP DELETE to the configured user-account endpoint,
// authenticated with the current access token.
func (a *OIDCAuthenticator) Delete(ctx context.Context) error {
	token, err := a.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("auth: delete account: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.userAccountURL, nil)
	if err != nil {
		return fmt.Errorf("auth: build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: delete account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("auth: delete account: unexpected status %d", resp.StatusCode)
	}
	return nil
}
