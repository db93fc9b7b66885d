package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
)

// Identity is the signed-in user as described by the access token claims.
type Identity struct {
	ID          string
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Profile converts the identity into the catalog's uploader shape.
func (i Identity) Profile() *models.Profile {
	return &models.Profile{ID: i.ID, Username: i.Username, DisplayName: i.DisplayName, AvatarURL: i.AvatarURL}
}

// accessClaims are the identity claims the backend puts in its access tokens.
type accessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// TokenStore persists the OAuth2 token and answers "who is signed in".
//
// Absence of a token is normal: CurrentCredential reports it with ok false rather than an error.
type TokenStore struct {
	config *oauth2.Config
	path   string
	logger *log.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenStore creates a [TokenStore] saving tokens at path.
func NewTokenStore(config *oauth2.Config, path string, logger *log.Logger) *TokenStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &TokenStore{config: config, path: path, logger: logger}
}

// NewOAuthConfig builds the OAuth2 client from config.
func NewOAuthConfig(cfg shared.AuthConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: auth.client_id is required", shared.ErrMissingConfig)
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("%w: auth.auth_url and auth.token_url are required", shared.ErrMissingConfig)
	}
	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}, nil
}

// OAuthConfig returns the underlying OAuth2 client configuration.
func (s *TokenStore) OAuthConfig() *oauth2.Config { return s.config }

// AuthCodeURL returns the OAuth2 authorization URL for user login.
func (s *TokenStore) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Save writes token to disk with owner-only permissions.
func (s *TokenStore) Save(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidTokenFile)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(token)
}

func (s *TokenStore) write(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	s.token = token
	return nil
}

// Load reads the saved token; a missing file returns [shared.ErrAuthRequired].
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *TokenStore) load() (*oauth2.Token, error) {
	if s.token != nil {
		return s.token, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, shared.ErrAuthRequired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrInvalidTokenFile, s.path)
	}
	s.token = &token
	return s.token, nil
}

// Clear removes the saved token.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// CurrentCredential returns a valid access token, refreshing an expired one when a refresh token exists.
func (s *TokenStore) CurrentCredential(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.load()
	if err != nil {
		if !errors.Is(err, shared.ErrAuthRequired) {
			s.logger.Warn("ignoring unreadable token", "path", s.path, "error", err)
		}
		return "", false
	}
	if token.Valid() {
		return token.AccessToken, true
	}
	if token.RefreshToken == "" {
		s.logger.Debug("access token expired", "expiry", token.Expiry)
		return "", false
	}

	refreshed, err := s.config.TokenSource(ctx, token).Token()
	if err != nil {
		s.logger.Warn("token refresh failed", "error", err)
		return "", false
	}
	if refreshed.AccessToken != token.AccessToken {
		if err := s.write(refreshed); err != nil {
			s.logger.Warn("failed to persist refreshed token", "error", err)
			s.token = refreshed
		}
	}
	return refreshed.AccessToken, true
}

// CurrentUser decodes the identity claims of the current access token.
//
// The signature is not verified here; the backend verifies every request that carries the token.
func (s *TokenStore) CurrentUser(ctx context.Context) (*Identity, error) {
	credential, ok := s.CurrentCredential(ctx)
	if !ok {
		return nil, shared.ErrAuthRequired
	}
	return IdentityFromToken(credential)
}

// IdentityFromToken parses the claims of a JWT access token without verifying it.
func IdentityFromToken(raw string) (*Identity, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: unreadable access token: %v", shared.ErrAuthFailed, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: access token has no subject", shared.ErrAuthFailed)
	}

	id := &Identity{ID: claims.Subject, Email: claims.Email}
	id.Username = metadataString(claims.UserMetadata, "username", "user_name", "preferred_username")
	id.DisplayName = metadataString(claims.UserMetadata, "full_name", "name")
	id.AvatarURL = metadataString(claims.UserMetadata, "avatar_url", "picture")
	if id.Username == "" && id.Email != "" {
		id.Username = id.Email
	}
	return id, nil
}

func metadataString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
