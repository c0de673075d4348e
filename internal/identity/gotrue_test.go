package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianfit/meridian/internal/shared"
	_ "github.com/meridianfit/meridian/testing"
)

const testSecret = "test-jwt-secret"

func signToken(t *testing.T, sub, email string, expiresIn time.Duration) string {
	t.Helper()
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["email"] != "client@meridian.test" || body["password"] != "correct-horse" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		case "authorization_code":
			if body["auth_code"] != "one-time-code" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		case "refresh_token":
			if body["refresh_token"] != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  signToken(t, "user-1", "client@meridian.test", time.Hour),
			"refresh_token": "refresh-2",
			"user":          map[string]string{"id": "user-1", "email": "client@meridian.test"},
		})
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := newTestServer(t)
	return NewClient(ClientConfig{BaseURL: srv.URL, AnonKey: "anon", JWTSecret: testSecret})
}

func TestClientUnconfigured(t *testing.T) {
	client := NewClient(ClientConfig{})
	if client.Configured() {
		t.Fatal("empty config must not be configured")
	}
	if _, _, _, err := client.CurrentUser(context.Background(), shared.TokenPair{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := client.PasswordGrant(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPasswordGrant(t *testing.T) {
	client := newTestClient(t)

	principal, tokens, err := client.PasswordGrant(context.Background(), "client@meridian.test", "correct-horse")
	if err != nil {
		t.Fatalf("password grant: %v", err)
	}
	if principal.ID != "user-1" || principal.Email != "client@meridian.test" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken != "refresh-2" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
}

func TestPasswordGrantWrongPassword(t *testing.T) {
	client := newTestClient(t)
	if _, _, err := client.PasswordGrant(context.Background(), "client@meridian.test", "wrong"); !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestExchangeCode(t *testing.T) {
	client := newTestClient(t)

	principal, tokens, err := client.ExchangeCode(context.Background(), "one-time-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if principal.ID != "user-1" || tokens.AccessToken == "" {
		t.Fatalf("unexpected result %+v %+v", principal, tokens)
	}

	if _, _, err := client.ExchangeCode(context.Background(), "stale"); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
}

func TestCurrentUserValidToken(t *testing.T) {
	client := newTestClient(t)
	tokens := shared.TokenPair{AccessToken: signToken(t, "user-1", "client@meridian.test", time.Hour)}

	principal, fresh, refreshed, err := client.CurrentUser(context.Background(), tokens)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if refreshed {
		t.Fatal("valid token must not trigger a refresh")
	}
	if principal.ID != "user-1" || fresh.AccessToken != tokens.AccessToken {
		t.Fatalf("unexpected result %+v %+v", principal, fresh)
	}
}

func TestCurrentUserExpiredTokenRefreshes(t *testing.T) {
	client := newTestClient(t)
	tokens := shared.TokenPair{
		AccessToken:  signToken(t, "user-1", "client@meridian.test", -time.Hour),
		RefreshToken: "refresh-1",
	}

	principal, fresh, refreshed, err := client.CurrentUser(context.Background(), tokens)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if !refreshed {
		t.Fatal("expired token must trigger a refresh")
	}
	if principal.ID != "user-1" || fresh.RefreshToken != "refresh-2" {
		t.Fatalf("unexpected result %+v %+v", principal, fresh)
	}
}

func TestCurrentUserUnreachableProviderIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(ClientConfig{BaseURL: srv.URL, AnonKey: "anon", JWTSecret: testSecret})

	expired := signToken(t, "user-1", "client@meridian.test", -time.Minute)
	_, _, _, err := client.CurrentUser(context.Background(), shared.TokenPair{AccessToken: expired, RefreshToken: "refresh-1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for unreachable provider, got %v", err)
	}
}

func TestCurrentUserServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{BaseURL: srv.URL, AnonKey: "anon", JWTSecret: testSecret})

	expired := signToken(t, "user-1", "client@meridian.test", -time.Minute)
	_, _, _, err := client.CurrentUser(context.Background(), shared.TokenPair{AccessToken: expired, RefreshToken: "refresh-1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for 5xx response, got %v", err)
	}
}

func TestPasswordGrantDownProviderNotInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{BaseURL: srv.URL, AnonKey: "anon", JWTSecret: testSecret})

	_, _, err := client.PasswordGrant(context.Background(), "client@meridian.test", "correct-horse")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatal("provider outage must not read as invalid credentials")
	}
}

func TestCurrentUserNoTokens(t *testing.T) {
	client := newTestClient(t)
	if _, _, _, err := client.CurrentUser(context.Background(), shared.TokenPair{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestParseAccessTokenRejectsWrongSignature(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://unused", AnonKey: "anon", JWTSecret: "other-secret"})
	if _, err := client.parseAccessToken(signToken(t, "user-1", "", time.Hour)); err == nil {
		t.Fatal("expected signature verification failure")
	}
}

func TestParseAccessTokenUnverifiedChecksExpiry(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://unused", AnonKey: "anon"})
	if _, err := client.parseAccessToken(signToken(t, "user-1", "", -time.Minute)); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expiry error, got %v", err)
	}
	if principal, err := client.parseAccessToken(signToken(t, "user-1", "x@y.z", time.Hour)); err != nil || principal.ID != "user-1" {
		t.Fatalf("expected unverified parse to succeed, got %v %v", principal, err)
	}
}

func TestSignOut(t *testing.T) {
	client := newTestClient(t)
	if err := client.SignOut(context.Background(), shared.TokenPair{AccessToken: "token"}); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	// No tokens means nothing to revoke.
	if err := client.SignOut(context.Background(), shared.TokenPair{}); err != nil {
		t.Fatalf("sign out without tokens: %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	client := newTestClient(t)
	if err := client.UpdatePassword(context.Background(), shared.TokenPair{AccessToken: "token"}, "new-password"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if err := client.UpdatePassword(context.Background(), shared.TokenPair{}, "new-password"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
