package profiles

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/meridianfit/meridian/internal/shared"
)

// ErrAdminImmune is returned when deactivation is attempted on an admin
// profile. Admins cannot be locked out through this path.
var ErrAdminImmune = errors.New("profiles: admin profiles cannot be deactivated")

// Service wraps profile business rules.
type Service struct {
	repo     Repository
	audit    *shared.AuditLogger
	logger   *slog.Logger
	inflight singleflight.Group
}

// NewService constructs a new Service. audit may be nil in tests.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Get fetches a profile by principal id.
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns profiles for the admin client overview.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Profile, int, error) {
	return s.repo.List(ctx, filters)
}

// Provision creates the profile record for a freshly created principal.
func (s *Service) Provision(ctx context.Context, id, email, fullName string) error {
	return s.repo.Create(ctx, Profile{ID: id, Email: email, FullName: fullName, Role: RoleClient})
}

// RoleFor resolves the role for a principal, defaulting to client whenever the
// lookup fails or no row exists. Concurrent lookups for the same principal are
// collapsed into one query.
func (s *Service) RoleFor(ctx context.Context, id string) Role {
	value, err, _ := s.inflight.Do("role:"+id, func() (any, error) {
		return s.repo.GetRole(ctx, id)
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("profile role lookup failed, defaulting to client", slog.String("id", id), slog.Any("error", err))
		}
		return RoleClient
	}
	raw, _ := value.(string)
	return ParseRole(raw)
}

// Deactivate flags a client profile. Admin profiles are refused outright.
func (s *Service) Deactivate(ctx context.Context, actorID, id, reason string) error {
	profile, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if profile.Role == RoleAdmin {
		return ErrAdminImmune
	}
	if err := s.repo.SetDeactivated(ctx, id, reason, time.Now().UTC()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "deactivate", id, map[string]any{"reason": reason})
	return nil
}

// Reactivate clears the deactivation flags.
func (s *Service) Reactivate(ctx context.Context, actorID, id string) error {
	if err := s.repo.ClearDeactivated(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "reactivate", id, nil)
	return nil
}

// Invite marks the profile as invited and returns the one-time invite code.
// Only the bcrypt hash of the code is stored.
func (s *Service) Invite(ctx context.Context, actorID, id string) (string, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return "", err
	}
	code := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	if err := s.repo.MarkInvited(ctx, id, string(hash), time.Now().UTC()); err != nil {
		return "", err
	}
	s.recordAudit(ctx, actorID, "invite", id, nil)
	return code, nil
}

// VerifyInviteCode checks a plain invite code against the stored hash.
func (s *Service) VerifyInviteCode(profile *Profile, code string) bool {
	if profile == nil || profile.InviteCodeHash == "" || code == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(profile.InviteCodeHash), []byte(code)) == nil
}

// AcceptInvitation stamps acceptance exactly once. Repeat calls after the
// field is set report false and leave the timestamp untouched.
func (s *Service) AcceptInvitation(ctx context.Context, id string) (bool, error) {
	return s.repo.AcceptInvitation(ctx, id, time.Now().UTC())
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "profile", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
