package gate_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridianfit/meridian/internal/gate"
	"github.com/meridianfit/meridian/internal/identity"
	"github.com/meridianfit/meridian/internal/profiles"
	"github.com/meridianfit/meridian/internal/shared"
	_ "github.com/meridianfit/meridian/testing"
)

type stubProvider struct {
	configured bool
	principal  *identity.Principal
	currentErr error
	signedOut  bool
}

func (p *stubProvider) Configured() bool { return p.configured }

func (p *stubProvider) CurrentUser(ctx context.Context, tokens shared.TokenPair) (*identity.Principal, shared.TokenPair, bool, error) {
	if p.currentErr != nil {
		return nil, tokens, false, p.currentErr
	}
	if p.principal == nil || tokens.AccessToken == "" {
		return nil, shared.TokenPair{}, false, identity.ErrNoSession
	}
	return p.principal, tokens, false, nil
}

func (p *stubProvider) PasswordGrant(ctx context.Context, email, password string) (*identity.Principal, shared.TokenPair, error) {
	return nil, shared.TokenPair{}, identity.ErrExchangeFailed
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (*identity.Principal, shared.TokenPair, error) {
	return nil, shared.TokenPair{}, identity.ErrExchangeFailed
}

func (p *stubProvider) UpdatePassword(ctx context.Context, tokens shared.TokenPair, password string) error {
	return nil
}

func (p *stubProvider) SignOut(ctx context.Context, tokens shared.TokenPair) error {
	p.signedOut = true
	return nil
}

type stubProfileRepo struct {
	profile *profiles.Profile
	role    string
}

func (r *stubProfileRepo) GetByID(ctx context.Context, id string) (*profiles.Profile, error) {
	if r.profile == nil {
		return nil, shared.ErrNotFound
	}
	return r.profile, nil
}

func (r *stubProfileRepo) GetRole(ctx context.Context, id string) (string, error) {
	if r.role == "" {
		return "", shared.ErrNotFound
	}
	return r.role, nil
}

func (r *stubProfileRepo) List(ctx context.Context, filters profiles.ListFilters) ([]profiles.Profile, int, error) {
	return nil, 0, nil
}

func (r *stubProfileRepo) Create(ctx context.Context, p profiles.Profile) error { return nil }

func (r *stubProfileRepo) SetDeactivated(ctx context.Context, id, reason string, at time.Time) error {
	return nil
}

func (r *stubProfileRepo) ClearDeactivated(ctx context.Context, id string) error { return nil }

func (r *stubProfileRepo) MarkInvited(ctx context.Context, id, codeHash string, at time.Time) error {
	return nil
}

func (r *stubProfileRepo) AcceptInvitation(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, nil
}

func newGateMiddleware(t *testing.T, provider identity.Provider, repo profiles.Repository) (*gate.Middleware, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	mw := &gate.Middleware{
		Provider: provider,
		Profiles: profiles.NewService(repo, nil, nil),
		Sessions: sessions,
		Routes:   gate.DefaultRoutes(),
	}
	return mw, sessions
}

func serve(t *testing.T, mw *gate.Middleware, sessions *shared.SessionManager, path string, prime func(*shared.Session)) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	sess, err := sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if prime != nil {
		prime(sess)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res, sess
}

func TestGateFailsOpenWhenUnconfigured(t *testing.T) {
	mw, sessions := newGateMiddleware(t, &stubProvider{configured: false}, &stubProfileRepo{})
	res, _ := serve(t, mw, sessions, "/admin/clients", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", res.Code)
	}
}

func TestGateRedirectsAnonymousToLogin(t *testing.T) {
	mw, sessions := newGateMiddleware(t, &stubProvider{configured: true}, &stubProfileRepo{})
	res, _ := serve(t, mw, sessions, "/admin/config/exercises", nil)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	loc := res.Header().Get("Location")
	if loc != "/login?next=%2Fadmin%2Fconfig%2Fexercises" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestGateDeniesClientOnAdminRoute(t *testing.T) {
	provider := &stubProvider{configured: true, principal: &identity.Principal{ID: "u1"}}
	repo := &stubProfileRepo{role: "client", profile: &profiles.Profile{ID: "u1", Role: profiles.RoleClient}}
	mw, sessions := newGateMiddleware(t, provider, repo)

	res, _ := serve(t, mw, sessions, "/admin", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "token", RefreshToken: "refresh"})
	})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/dashboard?error=Access%20denied" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestGateAllowsAdminOnAdminRoute(t *testing.T) {
	provider := &stubProvider{configured: true, principal: &identity.Principal{ID: "u1"}}
	repo := &stubProfileRepo{role: "admin", profile: &profiles.Profile{ID: "u1", Role: profiles.RoleAdmin}}
	mw, sessions := newGateMiddleware(t, provider, repo)

	res, _ := serve(t, mw, sessions, "/admin/clients", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "token", RefreshToken: "refresh"})
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", res.Code)
	}
}

func TestGateTerminatesDeactivatedClient(t *testing.T) {
	provider := &stubProvider{configured: true, principal: &identity.Principal{ID: "u1"}}
	repo := &stubProfileRepo{
		role:    "client",
		profile: &profiles.Profile{ID: "u1", Role: profiles.RoleClient, IsDeactivated: true},
	}
	mw, sessions := newGateMiddleware(t, provider, repo)

	res, _ := serve(t, mw, sessions, "/dashboard", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "token", RefreshToken: "refresh"})
	})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/login?error=account_deactivated" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
	if !provider.signedOut {
		t.Fatal("expected provider sign-out for deactivated client")
	}
}

func TestGateDeactivatedAdminKeepsAccess(t *testing.T) {
	provider := &stubProvider{configured: true, principal: &identity.Principal{ID: "u1"}}
	repo := &stubProfileRepo{
		role:    "admin",
		profile: &profiles.Profile{ID: "u1", Role: profiles.RoleAdmin, IsDeactivated: true},
	}
	mw, sessions := newGateMiddleware(t, provider, repo)

	res, _ := serve(t, mw, sessions, "/dashboard", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "token", RefreshToken: "refresh"})
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through for admin, got %d", res.Code)
	}
}

func TestGateFailsOpenWhenProviderDown(t *testing.T) {
	provider := &stubProvider{
		configured: true,
		currentErr: fmt.Errorf("%w: dial tcp 127.0.0.1:9999: connection refused", identity.ErrUnavailable),
	}
	mw, sessions := newGateMiddleware(t, provider, &stubProfileRepo{})

	res, sess := serve(t, mw, sessions, "/dashboard", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "token", RefreshToken: "refresh"})
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through during provider outage, got %d", res.Code)
	}
	if tokens := sess.Tokens(); tokens.AccessToken != "token" || tokens.RefreshToken != "refresh" {
		t.Fatalf("expected session tokens to survive the outage, got %+v", tokens)
	}
}

func TestGateDropsRejectedTokens(t *testing.T) {
	provider := &stubProvider{configured: true, currentErr: errors.New("identity: token rejected")}
	mw, sessions := newGateMiddleware(t, provider, &stubProfileRepo{})

	res, sess := serve(t, mw, sessions, "/dashboard", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "stale", RefreshToken: "stale"})
	})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected login redirect, got %d", res.Code)
	}
	if tokens := sess.Tokens(); tokens.AccessToken != "" || tokens.RefreshToken != "" {
		t.Fatalf("expected rejected tokens to be dropped, got %+v", tokens)
	}
}

func TestGateTerminatesDeactivatedClientOnPublicPath(t *testing.T) {
	provider := &stubProvider{configured: true, principal: &identity.Principal{ID: "u1"}}
	repo := &stubProfileRepo{
		role:    "client",
		profile: &profiles.Profile{ID: "u1", Role: profiles.RoleClient, IsDeactivated: true},
	}
	mw, sessions := newGateMiddleware(t, provider, repo)

	res, _ := serve(t, mw, sessions, "/", func(s *shared.Session) {
		s.SetTokens(shared.TokenPair{AccessToken: "token", RefreshToken: "refresh"})
	})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected termination on public path, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/login?error=account_deactivated" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
	if !provider.signedOut {
		t.Fatal("expected provider sign-out for deactivated client")
	}
}

func TestGateSkipsExcludedPaths(t *testing.T) {
	provider := &stubProvider{configured: true}
	mw, sessions := newGateMiddleware(t, provider, &stubProfileRepo{})
	res, _ := serve(t, mw, sessions, "/api/push/subscribe", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected excluded path to pass, got %d", res.Code)
	}
}
