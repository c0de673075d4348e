package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/meridianfit/meridian/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	ListExercises(ctx context.Context) ([]Exercise, error)
	GetExercise(ctx context.Context, id int64) (Exercise, error)
	CreateExercise(ctx context.Context, e Exercise) (Exercise, error)
	UpdateExercise(ctx context.Context, e Exercise) error
	DeleteExercise(ctx context.Context, id int64) error

	ListFoods(ctx context.Context) ([]Food, error)
	GetFood(ctx context.Context, id int64) (Food, error)
	CreateFood(ctx context.Context, f Food) (Food, error)
	UpdateFood(ctx context.Context, f Food) error
	DeleteFood(ctx context.Context, id int64) error

	ListRef(ctx context.Context, kind RefKind) ([]RefItem, error)
	CreateRef(ctx context.Context, kind RefKind, item RefItem) (RefItem, error)
	UpdateRef(ctx context.Context, kind RefKind, item RefItem) error
	DeleteRef(ctx context.Context, kind RefKind, id int64) error
}

// Service handles catalog business logic plus audit on mutations.
type Service struct {
	repo     RepositoryPort
	audit    *shared.AuditLogger
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds a Service instance. audit may be nil in tests.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: validator.New()}
}

func (s *Service) checkStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// ListExercises returns all exercises.
func (s *Service) ListExercises(ctx context.Context) ([]Exercise, error) {
	return s.repo.ListExercises(ctx)
}

// GetExercise fetches an exercise by id.
func (s *Service) GetExercise(ctx context.Context, id int64) (Exercise, error) {
	return s.repo.GetExercise(ctx, id)
}

// CreateExercise validates and inserts an exercise.
func (s *Service) CreateExercise(ctx context.Context, actorID string, e Exercise) (Exercise, error) {
	e.Name = strings.TrimSpace(e.Name)
	if err := s.checkStruct(e); err != nil {
		return Exercise{}, err
	}
	created, err := s.repo.CreateExercise(ctx, e)
	if err != nil {
		return Exercise{}, err
	}
	s.recordAudit(ctx, actorID, "create", "exercise", created.ID)
	return created, nil
}

// UpdateExercise validates and updates an exercise.
func (s *Service) UpdateExercise(ctx context.Context, actorID string, e Exercise) error {
	e.Name = strings.TrimSpace(e.Name)
	if err := s.checkStruct(e); err != nil {
		return err
	}
	if err := s.repo.UpdateExercise(ctx, e); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "update", "exercise", e.ID)
	return nil
}

// DeleteExercise removes an exercise.
func (s *Service) DeleteExercise(ctx context.Context, actorID string, id int64) error {
	if err := s.repo.DeleteExercise(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "delete", "exercise", id)
	return nil
}

// ListFoods returns all foods.
func (s *Service) ListFoods(ctx context.Context) ([]Food, error) {
	return s.repo.ListFoods(ctx)
}

// GetFood fetches a food by id.
func (s *Service) GetFood(ctx context.Context, id int64) (Food, error) {
	return s.repo.GetFood(ctx, id)
}

// CreateFood validates and inserts a food.
func (s *Service) CreateFood(ctx context.Context, actorID string, f Food) (Food, error) {
	f.Name = strings.TrimSpace(f.Name)
	if err := s.checkStruct(f); err != nil {
		return Food{}, err
	}
	created, err := s.repo.CreateFood(ctx, f)
	if err != nil {
		return Food{}, err
	}
	s.recordAudit(ctx, actorID, "create", "food", created.ID)
	return created, nil
}

// UpdateFood validates and updates a food.
func (s *Service) UpdateFood(ctx context.Context, actorID string, f Food) error {
	f.Name = strings.TrimSpace(f.Name)
	if err := s.checkStruct(f); err != nil {
		return err
	}
	if err := s.repo.UpdateFood(ctx, f); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "update", "food", f.ID)
	return nil
}

// DeleteFood removes a food.
func (s *Service) DeleteFood(ctx context.Context, actorID string, id int64) error {
	if err := s.repo.DeleteFood(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "delete", "food", id)
	return nil
}

// ListRef returns all entries of a reference kind.
func (s *Service) ListRef(ctx context.Context, kind RefKind) ([]RefItem, error) {
	return s.repo.ListRef(ctx, kind)
}

// CreateRef validates and inserts a reference entry.
func (s *Service) CreateRef(ctx context.Context, actorID string, kind RefKind, item RefItem) (RefItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if err := s.checkStruct(item); err != nil {
		return RefItem{}, err
	}
	created, err := s.repo.CreateRef(ctx, kind, item)
	if err != nil {
		return RefItem{}, err
	}
	s.recordAudit(ctx, actorID, "create", string(kind), created.ID)
	return created, nil
}

// UpdateRef validates and updates a reference entry.
func (s *Service) UpdateRef(ctx context.Context, actorID string, kind RefKind, item RefItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if err := s.checkStruct(item); err != nil {
		return err
	}
	if err := s.repo.UpdateRef(ctx, kind, item); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "update", string(kind), item.ID)
	return nil
}

// DeleteRef removes a reference entry.
func (s *Service) DeleteRef(ctx context.Context, actorID string, kind RefKind, id int64) error {
	if err := s.repo.DeleteRef(ctx, kind, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "delete", string(kind), id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entity string, id int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10)}); err != nil {
		s.logger.Warn("audit record", slog.String("entity", entity), slog.Any("error", err))
	}
}
