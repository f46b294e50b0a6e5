// Package auth obtains and refreshes OAuth2 access tokens for the admin API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fivetwenty-io/entity-client/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrNoCredentials = errors.New("no valid credentials available")
	ErrEmptyToken    = errors.New("token endpoint returned an empty access token")
)

// TokenPath is the token endpoint below the API base address.
const TokenPath = constants.APIPathToken

// expiryBuffer treats tokens that expire within this window as expired.
const expiryBuffer = 30 * time.Second

// Token is an access token with its expiry.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

// Valid reports whether the token can be sent. A zero expiry never expires.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(expiryBuffer).Before(t.ExpiresAt)
}

// TokenStore holds the current token. It is safe for concurrent use.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current token or nil.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Set replaces the current token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// Clear drops the current token.
func (s *TokenStore) Clear() {
	s.Set(nil)
}

// OAuth2Config holds the grant parameters. Username and Password select the
// password grant, otherwise ClientID and ClientSecret the client credentials
// grant.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scopes       []string
	// AccessToken seeds the store with a token without expiry.
	AccessToken  string
	RefreshToken string
	HTTPClient   *http.Client
}

// OAuth2TokenManager returns valid access tokens, fetching a new one when
// the current one expired.
type OAuth2TokenManager struct {
	config *OAuth2Config
	store  *TokenStore
	mu     sync.Mutex
}

// NewOAuth2TokenManager creates a token manager.
func NewOAuth2TokenManager(config *OAuth2Config) *OAuth2TokenManager {
	manager := &OAuth2TokenManager{
		config: config,
		store:  NewTokenStore(),
	}

	if config.AccessToken != "" {
		manager.store.Set(&Token{
			AccessToken:  config.AccessToken,
			RefreshToken: config.RefreshToken,
			TokenType:    "bearer",
		})
	}

	return manager
}

// NewAdminTokenManager creates a client credentials manager for the token
// endpoint of the API at endpoint.
func NewAdminTokenManager(endpoint, clientID, clientSecret string) *OAuth2TokenManager {
	return NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     strings.TrimSuffix(endpoint, "/") + TokenPath,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"write"},
	})
}

// GetToken returns a valid access token, fetching one if necessary.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	if token := m.store.Get(); token.Valid() {
		return token.AccessToken, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if token := m.store.Get(); token.Valid() {
		return token.AccessToken, nil
	}

	token, err := m.fetch(ctx, m.store.Get())
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// RefreshToken fetches a new token regardless of the current one.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.fetch(ctx, m.store.Get())

	return err
}

// SetToken stores a token obtained elsewhere.
func (m *OAuth2TokenManager) SetToken(token string, expiresAt time.Time) {
	m.store.Set(&Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// fetch runs the grant that fits the available credentials. Callers hold mu.
func (m *OAuth2TokenManager) fetch(ctx context.Context, current *Token) (*Token, error) {
	if m.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.config.HTTPClient)
	}

	refreshToken := m.config.RefreshToken
	if current != nil && current.RefreshToken != "" {
		refreshToken = current.RefreshToken
	}

	endpoint := oauth2.Endpoint{TokenURL: m.config.TokenURL, AuthStyle: oauth2.AuthStyleInHeader}
	passwordConfig := &oauth2.Config{
		ClientID:     m.config.ClientID,
		ClientSecret: m.config.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       m.config.Scopes,
	}

	var (
		token *oauth2.Token
		err   error
	)

	switch {
	case refreshToken != "":
		token, err = passwordConfig.TokenSource(ctx, &oauth2.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		}).Token()
	case m.config.Username != "":
		token, err = passwordConfig.PasswordCredentialsToken(ctx, m.config.Username, m.config.Password)
	case m.config.ClientID != "":
		credentials := &clientcredentials.Config{
			ClientID:     m.config.ClientID,
			ClientSecret: m.config.ClientSecret,
			TokenURL:     m.config.TokenURL,
			Scopes:       m.config.Scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		token, err = credentials.Token(ctx)
	default:
		return nil, ErrNoCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	if token.AccessToken == "" {
		return nil, ErrEmptyToken
	}

	stored := &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}

	if stored.RefreshToken == "" {
		stored.RefreshToken = refreshToken
	}

	m.store.Set(stored)

	return stored, nil
}
