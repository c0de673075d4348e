package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meridianfit/meridian/internal/identity"
	"github.com/meridianfit/meridian/internal/profiles"
	"github.com/meridianfit/meridian/internal/shared"
)

// Service runs the one-time post-authentication reconciliation over the
// principal's profile flags.
type Service struct {
	provider identity.Provider
	profiles *profiles.Service
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(provider identity.Provider, profileSvc *profiles.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, profiles: profileSvc, logger: logger}
}

// Reconcile checks the deactivation and pending-invitation flags immediately
// after a successful sign-in and performs at most one state mutation.
//
// A deactivated non-admin is signed out on the spot. A pending invitation is
// accepted exactly once; a duplicate callback after the field is set falls
// through to normal. A failed profile lookup never aborts the authentication
// flow: it logs and continues as normal, since refusing to log in a
// legitimately authenticated user is worse than skipping a cosmetic update.
func (s *Service) Reconcile(ctx context.Context, principal *identity.Principal, tokens shared.TokenPair) Outcome {
	profile, err := s.profiles.Get(ctx, principal.ID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("reconcile profile lookup", slog.String("id", principal.ID), slog.Any("error", err))
		}
		return OutcomeNormal
	}

	if profile.IsDeactivated && profile.Role != profiles.RoleAdmin {
		if err := s.provider.SignOut(ctx, tokens); err != nil {
			s.logger.Warn("reconcile sign out", slog.Any("error", err))
		}
		return OutcomeDeactivated
	}

	if profile.InvitedAt != nil && profile.InvitationAcceptedAt == nil {
		accepted, err := s.profiles.AcceptInvitation(ctx, principal.ID)
		if err != nil {
			s.logger.Warn("reconcile accept invitation", slog.Any("error", err))
			return OutcomeNormal
		}
		if accepted {
			return OutcomeInvited
		}
		// A concurrent duplicate callback already stamped acceptance.
	}

	return OutcomeNormal
}
