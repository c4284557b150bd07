package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/sekia-ai/calremind/internal/store"
)

var (
	// ErrNotAuthenticated means there is no usable token; the user must sign in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRefreshFailed means the refresh endpoint rejected or failed the request.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// refreshSkew refreshes tokens this long before they actually expire.
const refreshSkew = 5 * time.Minute

// revokeURL is Google's token revocation endpoint; overridden in tests.
var revokeURL = "https://oauth2.googleapis.com/revoke"

// TokenRecord is the persisted credential set.
type TokenRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// Expiry is epoch milliseconds; zero means unknown.
	Expiry int64 `json:"tokenExpiry,omitempty"`
}

func recordFromToken(tok *oauth2.Token) TokenRecord {
	rec := TokenRecord{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		rec.Expiry = tok.Expiry.UnixMilli()
	}
	return rec
}

// TokenStore owns the OAuth tokens: it persists them, hands out valid
// access tokens and refreshes them shortly before expiry.
type TokenStore struct {
	mu     sync.Mutex
	store  store.Store
	oauth  *oauth2.Config
	clock  clock.Clock
	client *http.Client
	logger zerolog.Logger

	loginMu     sync.Mutex
	cancelLogin context.CancelFunc
}

// NewTokenStore creates a TokenStore persisting into s.
func NewTokenStore(s store.Store, cfg *oauth2.Config, logger zerolog.Logger) *TokenStore {
	return &TokenStore{
		store:  s,
		oauth:  cfg,
		clock:  clock.New(),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "tokens").Logger(),
	}
}

// AccessToken returns a valid access token, refreshing it when it expires
// within five minutes.
func (t *TokenStore) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec TokenRecord
	found, err := store.GetJSON(ctx, t.store, store.KeyToken, &rec)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if !found || (rec.AccessToken == "" && rec.RefreshToken == "") {
		return "", ErrNotAuthenticated
	}

	if rec.AccessToken != "" && !t.expiring(rec) {
		return rec.AccessToken, nil
	}
	if rec.RefreshToken == "" {
		return "", fmt.Errorf("%w: token expired", ErrNotAuthenticated)
	}
	return t.refresh(ctx, rec)
}

func (t *TokenStore) expiring(rec TokenRecord) bool {
	if rec.Expiry == 0 {
		return false
	}
	return t.clock.Now().After(time.UnixMilli(rec.Expiry).Add(-refreshSkew))
}

// refresh must be called with mu held.
func (t *TokenStore) refresh(ctx context.Context, rec TokenRecord) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	tok, err := t.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			if rmErr := t.store.Remove(ctx, store.KeyToken); rmErr != nil {
				t.logger.Error().Err(rmErr).Msg("clear revoked token")
			}
			t.logger.Warn().Msg("refresh token rejected, signed out")
			return "", fmt.Errorf("%w: refresh token no longer valid", ErrRefreshFailed)
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := recordFromToken(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = rec.RefreshToken
	}
	if err := store.SetJSON(ctx, t.store, store.KeyToken, next); err != nil {
		// The fresh token is still usable for this call.
		t.logger.Warn().Err(err).Msg("failed to save refreshed token")
	}
	t.logger.Debug().Time("expiry", tok.Expiry).Msg("access token refreshed")
	return next.AccessToken, nil
}

// SaveToken persists a freshly issued token.
func (t *TokenStore) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := store.SetJSON(ctx, t.store, store.KeyToken, recordFromToken(tok)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Authenticated reports whether usable credentials are stored: an access
// token that has not expired, or a refresh token. It never contacts the
// token endpoint.
func (t *TokenStore) Authenticated(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec TokenRecord
	found, err := store.GetJSON(ctx, t.store, store.KeyToken, &rec)
	if err != nil || !found {
		return false
	}
	if rec.RefreshToken != "" {
		return true
	}
	return rec.AccessToken != "" && (rec.Expiry == 0 || t.clock.Now().Before(time.UnixMilli(rec.Expiry)))
}

// Logout revokes the access token in the background and forgets all tokens.
// Revocation failures are logged and otherwise ignored.
func (t *TokenStore) Logout(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec TokenRecord
	if _, err := store.GetJSON(ctx, t.store, store.KeyToken, &rec); err != nil {
		t.logger.Warn().Err(err).Msg("read token before logout")
	}
	if rec.AccessToken != "" {
		go t.revoke(rec.AccessToken)
	}
	if err := t.store.Remove(ctx, store.KeyToken); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	t.logger.Info().Msg("signed out")
	return nil
}

func (t *TokenStore) revoke(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		revokeURL+"?token="+url.QueryEscape(token), strings.NewReader(""))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug().Err(err).Msg("token revoke failed")
		return
	}
	resp.Body.Close()
	t.logger.Debug().Int("status", resp.StatusCode).Msg("token revoked")
}
