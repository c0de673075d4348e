package checkins

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianfit/meridian/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a check-in.
func (r *Repository) Create(ctx context.Context, c CheckIn) (CheckIn, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO check_ins (profile_id, weight_kg, energy, adherence, notes, created_at) VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
		c.ProfileID, c.WeightKg, c.Energy, c.Adherence, c.Notes).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return CheckIn{}, err
	}
	return c, nil
}

// ListForProfile returns the most recent check-ins for a client.
func (r *Repository) ListForProfile(ctx context.Context, profileID string, limit int) ([]CheckIn, error) {
	if limit < 1 {
		limit = 12
	}
	rows, err := r.pool.Query(ctx, `SELECT id, profile_id, weight_kg, energy, adherence, notes, created_at FROM check_ins WHERE profile_id = $1 ORDER BY created_at DESC LIMIT $2`, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []CheckIn
	for rows.Next() {
		var c CheckIn
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.WeightKg, &c.Energy, &c.Adherence, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CreatePhoto stores a progress photo.
func (r *Repository) CreatePhoto(ctx context.Context, p ProgressPhoto) (ProgressPhoto, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO progress_photos (profile_id, content_type, caption, data, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING id, created_at`,
		p.ProfileID, p.ContentType, p.Caption, p.Data).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return ProgressPhoto{}, err
	}
	p.Data = nil
	return p, nil
}

// ListPhotos returns photo metadata for a client, newest first. Image bytes
// are left out of the listing.
func (r *Repository) ListPhotos(ctx context.Context, profileID string, limit int) ([]ProgressPhoto, error) {
	if limit < 1 {
		limit = 24
	}
	rows, err := r.pool.Query(ctx, `SELECT id, profile_id, content_type, caption, created_at FROM progress_photos WHERE profile_id = $1 ORDER BY created_at DESC LIMIT $2`, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ProgressPhoto
	for rows.Next() {
		var p ProgressPhoto
		if err := rows.Scan(&p.ID, &p.ProfileID, &p.ContentType, &p.Caption, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetPhoto fetches one photo with its image bytes, scoped to the owner.
func (r *Repository) GetPhoto(ctx context.Context, id int64, profileID string) (ProgressPhoto, error) {
	var p ProgressPhoto
	err := r.pool.QueryRow(ctx, `SELECT id, profile_id, content_type, caption, data, created_at FROM progress_photos WHERE id = $1 AND profile_id = $2`, id, profileID).
		Scan(&p.ID, &p.ProfileID, &p.ContentType, &p.Caption, &p.Data, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressPhoto{}, shared.ErrNotFound
		}
		return ProgressPhoto{}, err
	}
	return p, nil
}

// ListRecent returns the latest check-ins across all clients for admin review.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]CheckIn, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, profile_id, weight_kg, energy, adherence, notes, created_at FROM check_ins ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []CheckIn
	for rows.Next() {
		var c CheckIn
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.WeightKg, &c.Energy, &c.Adherence, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
