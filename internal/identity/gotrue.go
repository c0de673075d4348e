package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianfit/meridian/internal/shared"
)

// Client talks to a GoTrue-compatible identity service over REST.
type Client struct {
	baseURL   string
	anonKey   string
	jwtSecret []byte
	http      *http.Client
}

// ClientConfig collects the settings required to reach the identity service.
type ClientConfig struct {
	// BaseURL is the auth endpoint root, e.g. https://id.example.com/auth/v1.
	BaseURL string
	// AnonKey is the public API key sent with every request.
	AnonKey string
	// JWTSecret, when set, enables signature verification of access tokens.
	// Without it tokens are still expiry-checked; they never originate from
	// the browser, only from the provider itself.
	JWTSecret string
	// Timeout bounds individual provider calls.
	Timeout time.Duration
}

// NewClient constructs a Client. An empty BaseURL or AnonKey yields an
// unconfigured client whose Configured method returns false.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		anonKey:   cfg.AnonKey,
		jwtSecret: []byte(cfg.JWTSecret),
		http:      &http.Client{Timeout: timeout},
	}
}

// Configured reports whether both the provider URL and key are present.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.anonKey != ""
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// CurrentUser parses the access token locally and refreshes it through the
// provider when expired.
func (c *Client) CurrentUser(ctx context.Context, tokens shared.TokenPair) (*Principal, shared.TokenPair, bool, error) {
	if !c.Configured() {
		return nil, tokens, false, ErrNotConfigured
	}
	if tokens.AccessToken == "" {
		return nil, tokens, false, ErrNoSession
	}

	principal, err := c.parseAccessToken(tokens.AccessToken)
	if err == nil {
		return principal, tokens, false, nil
	}
	if tokens.RefreshToken == "" {
		return nil, tokens, false, ErrNoSession
	}

	fresh, principal, err := c.refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return nil, tokens, false, err
	}
	return principal, fresh, true, nil
}

// PasswordGrant exchanges credentials for a token pair.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*Principal, shared.TokenPair, error) {
	if !c.Configured() {
		return nil, shared.TokenPair{}, ErrNotConfigured
	}
	grant, err := c.tokenRequest(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, shared.TokenPair{}, err
		}
		return nil, shared.TokenPair{}, shared.ErrInvalidCredentials
	}
	return grant.principal(), grant.tokens(), nil
}

// ExchangeCode trades a one-time code from the provider redirect for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Principal, shared.TokenPair, error) {
	if !c.Configured() {
		return nil, shared.TokenPair{}, ErrNotConfigured
	}
	grant, err := c.tokenRequest(ctx, "authorization_code", map[string]string{"auth_code": code})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, shared.TokenPair{}, err
		}
		return nil, shared.TokenPair{}, ErrExchangeFailed
	}
	return grant.principal(), grant.tokens(), nil
}

// UpdatePassword sets a new password for the principal behind the tokens.
func (c *Client) UpdatePassword(ctx context.Context, tokens shared.TokenPair, password string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if tokens.AccessToken == "" {
		return ErrNoSession
	}
	payload, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/user", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("identity: update password status %d", res.StatusCode)
	}
	return nil
}

// SignOut revokes the refresh token so it cannot mint new access tokens.
func (c *Client) SignOut(ctx context.Context, tokens shared.TokenPair) error {
	if !c.Configured() || tokens.AccessToken == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	if res.StatusCode >= 300 && res.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("identity: logout status %d", res.StatusCode)
	}
	return nil
}

type grantResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (g *grantResponse) principal() *Principal {
	return &Principal{ID: g.User.ID, Email: g.User.Email, AuthenticatedAt: time.Now().UTC()}
}

func (g *grantResponse) tokens() shared.TokenPair {
	return shared.TokenPair{AccessToken: g.AccessToken, RefreshToken: g.RefreshToken}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (shared.TokenPair, *Principal, error) {
	grant, err := c.tokenRequest(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return shared.TokenPair{}, nil, err
	}
	return grant.tokens(), grant.principal(), nil
}

func (c *Client) tokenRequest(ctx context.Context, grantType string, body map[string]string) (*grantResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token?grant_type="+grantType, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: token grant %s status %d", ErrUnavailable, grantType, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("identity: token grant %s status %d", grantType, res.StatusCode)
	}
	var grant grantResponse
	if err := json.NewDecoder(res.Body).Decode(&grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" || grant.User.ID == "" {
		return nil, fmt.Errorf("identity: token grant %s returned empty session", grantType)
	}
	return &grant, nil
}

func (c *Client) parseAccessToken(raw string) (*Principal, error) {
	var claims accessClaims
	if len(c.jwtSecret) > 0 {
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("identity: unexpected signing method %s", t.Method.Alg())
			}
			return c.jwtSecret, nil
		}, jwt.WithExpirationRequired())
		if err != nil {
			return nil, err
		}
	} else {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
			return nil, err
		}
		if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
			return nil, jwt.ErrTokenExpired
		}
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("identity: access token missing subject")
	}
	issued := time.Now().UTC()
	if claims.IssuedAt != nil {
		issued = claims.IssuedAt.Time
	}
	return &Principal{ID: claims.Subject, Email: claims.Email, AuthenticatedAt: issued}, nil
}

var _ Provider = (*Client)(nil)
