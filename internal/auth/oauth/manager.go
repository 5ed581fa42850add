// Package oauth owns the OAuth 2.0 Authorization-Code-with-PKCE
// lifecycle against the wearable provider: authorization initiation,
// callback completion, token refresh, and freshness checks.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/vitalsync/vitalsync/internal/db"
	"github.com/vitalsync/vitalsync/internal/db/models"
	"github.com/vitalsync/vitalsync/internal/providers/catalog"
)

const (
	stateTTL = 10 * time.Minute

	// Tokens are treated as expired this far before their real expiry
	// so an in-flight request never carries a token that dies mid-call.
	expiryMargin = 5 * time.Minute
)

// Authorization is the result of initiating a link flow.
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// Manager drives the PKCE flow and keeps stored credentials fresh.
type Manager struct {
	creds      *db.CredentialStore
	states     *db.OAuthStateStore
	cat        *catalog.Catalog
	config     *oauth2.Config
	httpClient *http.Client
	log        zerolog.Logger

	lockMu       sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewManager wires the flow manager. clientID/clientSecret/redirectURL
// come from runtime config, endpoints and scopes from the catalog.
func NewManager(creds *db.CredentialStore, states *db.OAuthStateStore, cat *catalog.Catalog, clientID, clientSecret, redirectURL string, log zerolog.Logger) *Manager {
	return &Manager{
		creds:  creds,
		states: states,
		cat:    cat,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       cat.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cat.AuthURL,
				TokenURL: cat.TokenURL,
			},
		},
		httpClient:   &http.Client{Timeout: cat.RequestTimeout},
		log:          log.With().Str("component", "oauth").Logger(),
		accountLocks: map[string]*sync.Mutex{},
	}
}

// Initiate builds the authorization URL for an account and persists the
// pending state (10-minute TTL, single use).
func (m *Manager) Initiate(ctx context.Context, accountID string) (*Authorization, error) {
	verifier, _, err := GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}
	state, err := generateStateToken()
	if err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}

	now := time.Now()
	if err := m.states.Put(ctx, &models.OAuthState{
		State:        state,
		CodeVerifier: verifier,
		AccountID:    accountID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(stateTTL),
	}); err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}

	// Opportunistic cleanup; expired rows are already invisible to Consume.
	if err := m.states.PruneExpired(ctx); err != nil {
		m.log.Warn().Err(err).Msg("prune expired oauth states failed")
	}

	authURL := m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	m.log.Info().Str("account_id", accountID).Msg("authorization initiated")
	return &Authorization{AuthorizationURL: authURL, State: state}, nil
}

// CompleteCallback consumes the state, exchanges the code with the
// stored verifier, resolves the provider user ID, and upserts the
// credential. The state row is deleted before the exchange outcome is
// known so a captured callback can never be replayed.
func (m *Manager) CompleteCallback(ctx context.Context, code, state string) (*models.Credential, error) {
	pending, err := m.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, db.ErrStateNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("complete callback: %w", err)
	}

	token, err := m.config.Exchange(m.clientContext(ctx), code,
		oauth2.VerifierOption(pending.CodeVerifier))
	if err != nil {
		return nil, &TokenExchangeError{Err: err}
	}

	providerUserID, err := m.fetchProviderUserID(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("complete callback: %w", err)
	}

	cred := &models.Credential{
		ID:             uuid.New().String(),
		AccountID:      pending.AccountID,
		ProviderUserID: providerUserID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresAt:      token.Expiry,
		Scopes:         strings.Join(m.config.Scopes, " "),
		Active:         true,
	}
	if err := m.creds.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("complete callback: %w", err)
	}

	m.log.Info().
		Str("account_id", pending.AccountID).
		Str("provider_user_id", providerUserID).
		Msg("account linked")
	return cred, nil
}

// Refresh exchanges the stored refresh token unless a concurrent
// caller already did. Permanent failures deactivate the credential;
// the account must re-link.
func (m *Manager) Refresh(ctx context.Context, accountID string) (*models.Credential, error) {
	return m.refresh(ctx, accountID, false)
}

// ForceRefresh always exchanges, even when the stored token still looks
// fresh. Used after the provider rejects a token with 401.
func (m *Manager) ForceRefresh(ctx context.Context, accountID string) (*models.Credential, error) {
	return m.refresh(ctx, accountID, true)
}

func (m *Manager) refresh(ctx context.Context, accountID string, force bool) (*models.Credential, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.creds.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, db.ErrCredentialNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !cred.Active {
		return nil, ErrNeedsReauthorization
	}

	// A concurrent caller holding the lock may already have refreshed;
	// with rotating refresh tokens a second exchange would invalidate it.
	if !force && time.Until(cred.ExpiresAt) > expiryMargin {
		return cred, nil
	}

	if strings.TrimSpace(cred.RefreshToken) == "" {
		if derr := m.creds.Deactivate(ctx, accountID); derr != nil {
			m.log.Warn().Err(derr).Str("account_id", accountID).Msg("deactivate failed")
		}
		return nil, ErrNeedsReauthorization
	}

	source := m.config.TokenSource(m.clientContext(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
	})
	token, err := source.Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			if derr := m.creds.Deactivate(ctx, accountID); derr != nil {
				m.log.Warn().Err(derr).Str("account_id", accountID).Msg("deactivate failed")
			}
			m.log.Warn().Err(err).Str("account_id", accountID).Msg("refresh token rejected, account deactivated")
			return nil, fmt.Errorf("%w: %v", ErrNeedsReauthorization, err)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	refreshToken := cred.RefreshToken
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		m.log.Info().Str("account_id", accountID).Msg("refresh token rotated")
		refreshToken = token.RefreshToken
	}
	if err := m.creds.UpdateTokens(ctx, accountID, token.AccessToken, refreshToken, token.Expiry); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	cred, err = m.creds.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("refresh: reload credential: %w", err)
	}
	m.log.Info().
		Str("account_id", accountID).
		Time("expires_at", cred.ExpiresAt).
		Msg("token refreshed")
	return cred, nil
}

// GetValidToken returns a usable access token, refreshing when the
// stored one is inside the expiry margin. A still-fresh token is served
// without any network call.
func (m *Manager) GetValidToken(ctx context.Context, accountID string) (string, error) {
	cred, err := m.creds.GetActive(ctx, accountID)
	if err != nil {
		if errors.Is(err, db.ErrCredentialNotFound) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("get valid token: %w", err)
	}

	if time.Until(cred.ExpiresAt) > expiryMargin {
		return cred.AccessToken, nil
	}

	refreshed, err := m.Refresh(ctx, accountID)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// fetchProviderUserID resolves the provider-side user identifier via
// the profile endpoint.
func (m *Manager) fetchProviderUserID(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cat.APIBaseURL+m.cat.ProfilePath, nil)
	if err != nil {
		return "", fmt.Errorf("profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile request: status=%d", resp.StatusCode)
	}

	var payload struct {
		User struct {
			ID        string `json:"id"`
			EncodedID string `json:"encodedId"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("profile response: parse json: %w", err)
	}

	id := payload.User.EncodedID
	if id == "" {
		id = payload.User.ID
	}
	if id == "" {
		return "", fmt.Errorf("profile response: missing user identifier")
	}
	return id, nil
}

// clientContext routes oauth2 library calls through our timeout-bounded
// HTTP client.
func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// accountLock serializes refreshes per account so rotating refresh
// tokens are never burned by a concurrent exchange.
func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	lock, ok := m.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.accountLocks[accountID] = lock
	}
	return lock
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
