// Package identity wraps the hosted identity provider. All session tokens are
// held server-side in the session store; the browser only ever sees the opaque
// session cookie.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/meridianfit/meridian/internal/shared"
)

// Principal is an authenticated identity as reported by the provider.
type Principal struct {
	ID              string
	Email           string
	AuthenticatedAt time.Time
}

var (
	// ErrNotConfigured indicates the provider URL or key is missing.
	ErrNotConfigured = errors.New("identity: provider not configured")
	// ErrNoSession indicates the session carries no usable tokens.
	ErrNoSession = errors.New("identity: no session")
	// ErrExchangeFailed indicates an invalid or expired auth code.
	ErrExchangeFailed = errors.New("identity: code exchange failed")
	// ErrUnavailable indicates the provider could not be reached or answered
	// with a server error. Callers must not treat the session as invalid.
	ErrUnavailable = errors.New("identity: provider unavailable")
)

// Provider exposes the identity-provider operations the application depends on.
type Provider interface {
	// Configured reports whether the provider can be reached at all. When it
	// returns false the route gate fails open.
	Configured() bool
	// CurrentUser resolves the principal behind the session tokens, refreshing
	// them when the access token has expired. The returned pair replaces the
	// session tokens whenever refreshed is true.
	CurrentUser(ctx context.Context, tokens shared.TokenPair) (principal *Principal, fresh shared.TokenPair, refreshed bool, err error)
	// PasswordGrant exchanges email/password credentials for a token pair.
	PasswordGrant(ctx context.Context, email, password string) (*Principal, shared.TokenPair, error)
	// ExchangeCode exchanges a one-time auth code for a token pair.
	ExchangeCode(ctx context.Context, code string) (*Principal, shared.TokenPair, error)
	// UpdatePassword sets a new password for the authenticated principal.
	UpdatePassword(ctx context.Context, tokens shared.TokenPair, password string) error
	// SignOut revokes the refresh token server-side.
	SignOut(ctx context.Context, tokens shared.TokenPair) error
}
