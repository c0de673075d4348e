package profiles

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianfit/meridian/internal/platform/db"
	"github.com/meridianfit/meridian/internal/shared"
)

// Repository defines persistence operations for profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetRole(ctx context.Context, id string) (string, error)
	List(ctx context.Context, filters ListFilters) ([]Profile, int, error)
	Create(ctx context.Context, p Profile) error
	SetDeactivated(ctx context.Context, id, reason string, at time.Time) error
	ClearDeactivated(ctx context.Context, id string) error
	MarkInvited(ctx context.Context, id, codeHash string, at time.Time) error
	// AcceptInvitation stamps invitation_accepted_at once. It reports false
	// when there was no pending invitation, making duplicate callbacks a no-op.
	AcceptInvitation(ctx context.Context, id string, at time.Time) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = `id, email, full_name, role, is_deactivated, deactivated_at, deactivation_reason, invited_at, invitation_accepted_at, invite_code_hash, created_at, updated_at`

// GetByID fetches a profile by principal id.
func (r *PGRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetRole fetches only the stored role string.
func (r *PGRepository) GetRole(ctx context.Context, id string) (string, error) {
	var role string
	if err := r.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return role, nil
}

// List returns profiles matching the filters plus the unpaged total.
func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Profile, int, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM profiles WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		clause := ` AND (email ILIKE $` + strconv.Itoa(argCount) + ` OR full_name ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Role != "" {
		argCount++
		clause := ` AND role = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, string(ParseRole(filters.Role)))
	}
	if filters.Deactivated != nil {
		argCount++
		clause := ` AND is_deactivated = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *filters.Deactivated)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 {
		limit = 20
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa((page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// Create inserts a profile record at account provisioning.
func (r *PGRepository) Create(ctx context.Context, p Profile) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (id, email, full_name, role, created_at, updated_at) VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		p.ID, p.Email, p.FullName, string(ParseRole(string(p.Role))))
	return err
}

// SetDeactivated flags the profile as deactivated.
func (r *PGRepository) SetDeactivated(ctx context.Context, id, reason string, at time.Time) error {
	// Dropping push subscriptions in the same transaction keeps a
	// deactivated client from receiving broadcasts.
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET is_deactivated = TRUE, deactivated_at = $2, deactivation_reason = $3, updated_at = NOW() WHERE id = $1`, id, at.UTC(), reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM push_subscriptions WHERE profile_id = $1`, id)
		return err
	})
}

// ClearDeactivated removes the deactivation flags.
func (r *PGRepository) ClearDeactivated(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET is_deactivated = FALSE, deactivated_at = NULL, deactivation_reason = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkInvited stamps invited_at and stores the invite code hash, resetting any
// previous acceptance so the invite can be re-sent.
func (r *PGRepository) MarkInvited(ctx context.Context, id, codeHash string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET invited_at = $2, invitation_accepted_at = NULL, invite_code_hash = $3, updated_at = NOW() WHERE id = $1`, id, at.UTC(), codeHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AcceptInvitation performs the single idempotent acceptance write.
func (r *PGRepository) AcceptInvitation(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET invitation_accepted_at = $2, updated_at = NOW() WHERE id = $1 AND invited_at IS NOT NULL AND invitation_accepted_at IS NULL`, id, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		p      Profile
		role   string
		reason *string
		hash   *string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &role, &p.IsDeactivated, &p.DeactivatedAt, &reason, &p.InvitedAt, &p.InvitationAcceptedAt, &hash, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = ParseRole(role)
	if reason != nil {
		p.DeactivationReason = *reason
	}
	if hash != nil {
		p.InviteCodeHash = *hash
	}
	return &p, nil
}

var _ Repository = (*PGRepository)(nil)
