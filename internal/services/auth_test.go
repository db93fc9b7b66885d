package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vgen/internal/shared"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func newTokenStore(t *testing.T, tokenURL string) *TokenStore {
	t.Helper()
	config := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "http://auth.local/authorize", TokenURL: tokenURL},
	}
	return NewTokenStore(config, filepath.Join(t.TempDir(), "nested", "token.json"), log.New(io.Discard))
}

func TestTokenStore(t *testing.T) {
	t.Run("No Token Means No Credential", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")

		if cred, ok := store.CurrentCredential(context.Background()); ok || cred != "" {
			t.Errorf("expected no credential, got %q", cred)
		}
		if _, err := store.CurrentUser(context.Background()); !errors.Is(err, shared.ErrAuthRequired) {
			t.Errorf("expected ErrAuthRequired, got %v", err)
		}
	})

	t.Run("Save Writes An Owner Only File", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")
		if err := store.Save(&oauth2.Token{AccessToken: "abc"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		info, err := os.Stat(store.path)
		if err != nil {
			t.Fatalf("token file should exist: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("expected 0600, got %v", info.Mode().Perm())
		}

		reloaded := NewTokenStore(store.config, store.path, log.New(io.Discard))
		cred, ok := reloaded.CurrentCredential(context.Background())
		if !ok || cred != "abc" {
			t.Errorf("expected saved credential, got %q %v", cred, ok)
		}
	})

	t.Run("Save Rejects Empty Tokens", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")
		if err := store.Save(&oauth2.Token{}); !errors.Is(err, shared.ErrInvalidTokenFile) {
			t.Errorf("expected ErrInvalidTokenFile, got %v", err)
		}
	})

	t.Run("Corrupt File Is Treated As Signed Out", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")
		os.MkdirAll(filepath.Dir(store.path), 0o700)
		os.WriteFile(store.path, []byte("{garbage"), 0o600)

		if _, ok := store.CurrentCredential(context.Background()); ok {
			t.Error("expected no credential")
		}
		if _, err := store.Load(); !errors.Is(err, shared.ErrInvalidTokenFile) {
			t.Errorf("expected ErrInvalidTokenFile, got %v", err)
		}
	})

	t.Run("Expired Token Without Refresh Token", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")
		store.Save(&oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)})

		if _, ok := store.CurrentCredential(context.Background()); ok {
			t.Error("expected expired token to be rejected")
		}
	})

	t.Run("Expired Token Is Refreshed And Persisted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "r1" {
				t.Errorf("unexpected refresh form %v", r.Form)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "new",
				"token_type":    "bearer",
				"refresh_token": "r2",
				"expires_in":    3600,
			})
		}))
		defer server.Close()

		store := newTokenStore(t, server.URL)
		store.Save(&oauth2.Token{AccessToken: "old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)})

		cred, ok := store.CurrentCredential(context.Background())
		if !ok || cred != "new" {
			t.Fatalf("expected refreshed credential, got %q %v", cred, ok)
		}

		data, _ := os.ReadFile(store.path)
		var saved oauth2.Token
		json.Unmarshal(data, &saved)
		if saved.AccessToken != "new" || saved.RefreshToken != "r2" {
			t.Errorf("expected refreshed token on disk, got %+v", saved)
		}
	})

	t.Run("Clear Removes The Token", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")
		store.Save(&oauth2.Token{AccessToken: "abc"})

		if err := store.Clear(); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if _, ok := store.CurrentCredential(context.Background()); ok {
			t.Error("expected no credential after clear")
		}
		if err := store.Clear(); err != nil {
			t.Errorf("clearing twice should not fail, got %v", err)
		}
	})

	t.Run("CurrentUser Decodes Claims", func(t *testing.T) {
		store := newTokenStore(t, "http://auth.local/token")
		store.Save(&oauth2.Token{AccessToken: signedToken(t, jwt.MapClaims{
			"sub":   "u1",
			"email": "kim@example.com",
			"user_metadata": map[string]any{
				"username":   "kim",
				"full_name":  "Kim L.",
				"avatar_url": "https://cdn/kim.png",
			},
		})})

		id, err := store.CurrentUser(context.Background())
		if err != nil {
			t.Fatalf("CurrentUser failed: %v", err)
		}
		if id.ID != "u1" || id.Username != "kim" || id.DisplayName != "Kim L." || id.AvatarURL != "https://cdn/kim.png" {
			t.Errorf("unexpected identity %+v", id)
		}
		if p := id.Profile(); p.ID != "u1" || p.Username != "kim" {
			t.Errorf("unexpected profile %+v", p)
		}
	})
}

func TestIdentityFromToken(t *testing.T) {
	t.Run("Email Stands In For A Missing Username", func(t *testing.T) {
		id, err := IdentityFromToken(signedToken(t, jwt.MapClaims{"sub": "u1", "email": "a@b.c"}))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id.Username != "a@b.c" {
			t.Errorf("expected email fallback, got %q", id.Username)
		}
	})

	t.Run("Missing Subject", func(t *testing.T) {
		if _, err := IdentityFromToken(signedToken(t, jwt.MapClaims{"email": "a@b.c"})); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("Opaque Token", func(t *testing.T) {
		if _, err := IdentityFromToken("not-a-jwt"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}

func TestNewOAuthConfig(t *testing.T) {
	if _, err := NewOAuthConfig(shared.AuthConfig{}); !errors.Is(err, shared.ErrMissingConfig) {
		t.Errorf("expected ErrMissingConfig, got %v", err)
	}

	cfg, err := NewOAuthConfig(shared.DefaultConfig().Auth)
	if err != nil {
		t.Fatalf("expected default auth config to build, got %v", err)
	}
	if cfg.RedirectURL != "http://localhost:3000/callback" || len(cfg.Scopes) == 0 {
		t.Errorf("unexpected oauth config %+v", cfg)
	}
}
