package checkins

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation indicates an out-of-range check-in field.
var ErrValidation = errors.New("checkins: validation failed")

// MaxPhotoBytes caps progress photo uploads. Must match the max tag on
// ProgressPhoto.Data.
const MaxPhotoBytes = 5 << 20

// RepositoryPort defines data access methods for check-ins.
type RepositoryPort interface {
	Create(ctx context.Context, c CheckIn) (CheckIn, error)
	ListForProfile(ctx context.Context, profileID string, limit int) ([]CheckIn, error)
	ListRecent(ctx context.Context, limit int) ([]CheckIn, error)
	CreatePhoto(ctx context.Context, p ProgressPhoto) (ProgressPhoto, error)
	ListPhotos(ctx context.Context, profileID string, limit int) ([]ProgressPhoto, error)
	GetPhoto(ctx context.Context, id int64, profileID string) (ProgressPhoto, error)
}

// Service handles check-in business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// Submit validates and stores a check-in for the given client.
func (s *Service) Submit(ctx context.Context, c CheckIn) (CheckIn, error) {
	if err := s.validate.Struct(c); err != nil {
		return CheckIn{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.repo.Create(ctx, c)
}

// History returns the client's recent check-ins, newest first.
func (s *Service) History(ctx context.Context, profileID string, limit int) ([]CheckIn, error) {
	return s.repo.ListForProfile(ctx, profileID, limit)
}

// Summarize builds dashboard progress numbers from the client's history.
func (s *Service) Summarize(ctx context.Context, profileID string) (Summary, error) {
	history, err := s.repo.ListForProfile(ctx, profileID, 12)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Count: len(history)}
	if len(history) == 0 {
		return summary, nil
	}
	latest := history[0]
	summary.LatestWeightKg = latest.WeightKg
	summary.LastCheckInAt = &latest.CreatedAt
	oldest := history[len(history)-1]
	summary.WeightDeltaKg = latest.WeightKg - oldest.WeightKg
	return summary, nil
}

// Recent returns the latest check-ins across all clients.
func (s *Service) Recent(ctx context.Context, limit int) ([]CheckIn, error) {
	return s.repo.ListRecent(ctx, limit)
}

// AddPhoto validates and stores a progress photo for the given client.
func (s *Service) AddPhoto(ctx context.Context, p ProgressPhoto) (ProgressPhoto, error) {
	if err := s.validate.Struct(p); err != nil {
		return ProgressPhoto{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.repo.CreatePhoto(ctx, p)
}

// Photos lists the client's progress photo metadata, newest first.
func (s *Service) Photos(ctx context.Context, profileID string, limit int) ([]ProgressPhoto, error) {
	return s.repo.ListPhotos(ctx, profileID, limit)
}

// Photo fetches a single owned photo with its image bytes.
func (s *Service) Photo(ctx context.Context, id int64, profileID string) (ProgressPhoto, error) {
	return s.repo.GetPhoto(ctx, id, profileID)
}
