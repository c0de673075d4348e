package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/meridianfit/meridian/internal/auth"
	"github.com/meridianfit/meridian/internal/identity"
	"github.com/meridianfit/meridian/internal/profiles"
	"github.com/meridianfit/meridian/internal/shared"
	_ "github.com/meridianfit/meridian/testing"
)

type reconcileProvider struct {
	signedOut int
}

func (p *reconcileProvider) Configured() bool { return true }

func (p *reconcileProvider) CurrentUser(ctx context.Context, tokens shared.TokenPair) (*identity.Principal, shared.TokenPair, bool, error) {
	return nil, shared.TokenPair{}, false, identity.ErrNoSession
}

func (p *reconcileProvider) PasswordGrant(ctx context.Context, email, password string) (*identity.Principal, shared.TokenPair, error) {
	return nil, shared.TokenPair{}, identity.ErrExchangeFailed
}

func (p *reconcileProvider) ExchangeCode(ctx context.Context, code string) (*identity.Principal, shared.TokenPair, error) {
	return nil, shared.TokenPair{}, identity.ErrExchangeFailed
}

func (p *reconcileProvider) UpdatePassword(ctx context.Context, tokens shared.TokenPair, password string) error {
	return nil
}

func (p *reconcileProvider) SignOut(ctx context.Context, tokens shared.TokenPair) error {
	p.signedOut++
	return nil
}

type reconcileRepo struct {
	profile  *profiles.Profile
	accepted bool
	accepts  int
}

func (r *reconcileRepo) GetByID(ctx context.Context, id string) (*profiles.Profile, error) {
	if r.profile == nil {
		return nil, shared.ErrNotFound
	}
	return r.profile, nil
}

func (r *reconcileRepo) GetRole(ctx context.Context, id string) (string, error) {
	return string(r.profile.Role), nil
}

func (r *reconcileRepo) List(ctx context.Context, filters profiles.ListFilters) ([]profiles.Profile, int, error) {
	return nil, 0, nil
}

func (r *reconcileRepo) Create(ctx context.Context, p profiles.Profile) error { return nil }

func (r *reconcileRepo) SetDeactivated(ctx context.Context, id, reason string, at time.Time) error {
	return nil
}

func (r *reconcileRepo) ClearDeactivated(ctx context.Context, id string) error { return nil }

func (r *reconcileRepo) MarkInvited(ctx context.Context, id, codeHash string, at time.Time) error {
	return nil
}

func (r *reconcileRepo) AcceptInvitation(ctx context.Context, id string, at time.Time) (bool, error) {
	r.accepts++
	if r.accepted {
		return false, nil
	}
	r.accepted = true
	r.profile.InvitationAcceptedAt = &at
	return true, nil
}

func newReconcileService(repo *reconcileRepo, provider *reconcileProvider) *auth.Service {
	return auth.NewService(provider, profiles.NewService(repo, nil, nil), nil)
}

func TestReconcileNormal(t *testing.T) {
	repo := &reconcileRepo{profile: &profiles.Profile{ID: "u1", Role: profiles.RoleClient}}
	provider := &reconcileProvider{}
	svc := newReconcileService(repo, provider)

	got := svc.Reconcile(context.Background(), &identity.Principal{ID: "u1"}, shared.TokenPair{AccessToken: "t"})
	if got != auth.OutcomeNormal {
		t.Fatalf("expected normal outcome, got %v", got)
	}
	if provider.signedOut != 0 {
		t.Fatal("unexpected sign-out")
	}
}

func TestReconcileMissingProfileFallsThrough(t *testing.T) {
	svc := newReconcileService(&reconcileRepo{}, &reconcileProvider{})
	got := svc.Reconcile(context.Background(), &identity.Principal{ID: "missing"}, shared.TokenPair{})
	if got != auth.OutcomeNormal {
		t.Fatalf("expected normal outcome on missing profile, got %v", got)
	}
}

func TestReconcileDeactivatedClientSignsOut(t *testing.T) {
	repo := &reconcileRepo{profile: &profiles.Profile{ID: "u1", Role: profiles.RoleClient, IsDeactivated: true}}
	provider := &reconcileProvider{}
	svc := newReconcileService(repo, provider)

	got := svc.Reconcile(context.Background(), &identity.Principal{ID: "u1"}, shared.TokenPair{AccessToken: "t"})
	if got != auth.OutcomeDeactivated {
		t.Fatalf("expected deactivated outcome, got %v", got)
	}
	if provider.signedOut != 1 {
		t.Fatalf("expected one sign-out, got %d", provider.signedOut)
	}
}

func TestReconcileDeactivatedAdminStaysSignedIn(t *testing.T) {
	repo := &reconcileRepo{profile: &profiles.Profile{ID: "u1", Role: profiles.RoleAdmin, IsDeactivated: true}}
	provider := &reconcileProvider{}
	svc := newReconcileService(repo, provider)

	got := svc.Reconcile(context.Background(), &identity.Principal{ID: "u1"}, shared.TokenPair{AccessToken: "t"})
	if got != auth.OutcomeNormal {
		t.Fatalf("expected normal outcome for deactivated admin, got %v", got)
	}
	if provider.signedOut != 0 {
		t.Fatal("admin must not be signed out")
	}
}

func TestReconcileAcceptsInvitationOnce(t *testing.T) {
	invitedAt := time.Now().Add(-time.Hour)
	repo := &reconcileRepo{profile: &profiles.Profile{ID: "u1", Role: profiles.RoleClient, InvitedAt: &invitedAt}}
	provider := &reconcileProvider{}
	svc := newReconcileService(repo, provider)

	first := svc.Reconcile(context.Background(), &identity.Principal{ID: "u1"}, shared.TokenPair{AccessToken: "t"})
	if first != auth.OutcomeInvited {
		t.Fatalf("expected invited outcome, got %v", first)
	}

	second := svc.Reconcile(context.Background(), &identity.Principal{ID: "u1"}, shared.TokenPair{AccessToken: "t"})
	if second != auth.OutcomeNormal {
		t.Fatalf("expected normal outcome on repeat sign-in, got %v", second)
	}
	if repo.accepts != 1 {
		t.Fatalf("expected a single acceptance write, got %d", repo.accepts)
	}
}
