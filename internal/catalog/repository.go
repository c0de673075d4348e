package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the catalog entry does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrDuplicate indicates a name collision within a catalog table.
	ErrDuplicate = errors.New("catalog: duplicate name")
	// ErrValidation indicates invalid input for a catalog entry.
	ErrValidation = errors.New("catalog: validation failed")
	// ErrUnknownKind indicates a reference kind outside the whitelist.
	ErrUnknownKind = errors.New("catalog: unknown reference kind")
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListExercises returns all exercises ordered by name.
func (r *Repository) ListExercises(ctx context.Context) ([]Exercise, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, muscle_group, description, video_url, created_at, updated_at FROM exercises ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Exercise
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(&e.ID, &e.Name, &e.MuscleGroup, &e.Description, &e.VideoURL, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetExercise fetches an exercise by id.
func (r *Repository) GetExercise(ctx context.Context, id int64) (Exercise, error) {
	var e Exercise
	err := r.pool.QueryRow(ctx, `SELECT id, name, muscle_group, description, video_url, created_at, updated_at FROM exercises WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.MuscleGroup, &e.Description, &e.VideoURL, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Exercise{}, ErrNotFound
		}
		return Exercise{}, err
	}
	return e, nil
}

// CreateExercise inserts a new exercise.
func (r *Repository) CreateExercise(ctx context.Context, e Exercise) (Exercise, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO exercises (name, muscle_group, description, video_url, created_at, updated_at) VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		e.Name, e.MuscleGroup, e.Description, e.VideoURL).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Exercise{}, mapPGError(err)
	}
	return e, nil
}

// UpdateExercise updates an existing exercise.
func (r *Repository) UpdateExercise(ctx context.Context, e Exercise) error {
	tag, err := r.pool.Exec(ctx, `UPDATE exercises SET name = $2, muscle_group = $3, description = $4, video_url = $5, updated_at = NOW() WHERE id = $1`,
		e.ID, e.Name, e.MuscleGroup, e.Description, e.VideoURL)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExercise removes an exercise by id.
func (r *Repository) DeleteExercise(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exercises WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFoods returns all foods ordered by name.
func (r *Repository) ListFoods(ctx context.Context) ([]Food, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, calories, protein, carbs, fat, created_at, updated_at FROM foods ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Food
	for rows.Next() {
		var f Food
		if err := rows.Scan(&f.ID, &f.Name, &f.Calories, &f.Protein, &f.Carbs, &f.Fat, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// GetFood fetches a food by id.
func (r *Repository) GetFood(ctx context.Context, id int64) (Food, error) {
	var f Food
	err := r.pool.QueryRow(ctx, `SELECT id, name, calories, protein, carbs, fat, created_at, updated_at FROM foods WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Calories, &f.Protein, &f.Carbs, &f.Fat, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Food{}, ErrNotFound
		}
		return Food{}, err
	}
	return f, nil
}

// CreateFood inserts a new food.
func (r *Repository) CreateFood(ctx context.Context, f Food) (Food, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO foods (name, calories, protein, carbs, fat, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		f.Name, f.Calories, f.Protein, f.Carbs, f.Fat).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Food{}, mapPGError(err)
	}
	return f, nil
}

// UpdateFood updates an existing food.
func (r *Repository) UpdateFood(ctx context.Context, f Food) error {
	tag, err := r.pool.Exec(ctx, `UPDATE foods SET name = $2, calories = $3, protein = $4, carbs = $5, fat = $6, updated_at = NOW() WHERE id = $1`,
		f.ID, f.Name, f.Calories, f.Protein, f.Carbs, f.Fat)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFood removes a food by id.
func (r *Repository) DeleteFood(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM foods WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRef returns all rows of a reference table ordered by name.
func (r *Repository) ListRef(ctx context.Context, kind RefKind) ([]RefItem, error) {
	table, ok := refTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, name, description, created_at, updated_at FROM %s ORDER BY name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []RefItem
	for rows.Next() {
		var item RefItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// CreateRef inserts a new reference row.
func (r *Repository) CreateRef(ctx context.Context, kind RefKind, item RefItem) (RefItem, error) {
	table, ok := refTables[kind]
	if !ok {
		return RefItem{}, ErrUnknownKind
	}
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (name, description, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) RETURNING id, created_at, updated_at`, table),
		item.Name, item.Description).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return RefItem{}, mapPGError(err)
	}
	return item, nil
}

// UpdateRef updates an existing reference row.
func (r *Repository) UpdateRef(ctx context.Context, kind RefKind, item RefItem) error {
	table, ok := refTables[kind]
	if !ok {
		return ErrUnknownKind
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET name = $2, description = $3, updated_at = NOW() WHERE id = $1`, table),
		item.ID, item.Name, item.Description)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRef removes a reference row by id.
func (r *Repository) DeleteRef(ctx context.Context, kind RefKind, id int64) error {
	table, ok := refTables[kind]
	if !ok {
		return ErrUnknownKind
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
