package push

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for subscriptions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert stores a subscription, replacing keys for a re-registered endpoint.
func (r *Repository) Upsert(ctx context.Context, s Subscription) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO push_subscriptions (profile_id, endpoint, p256dh, auth, created_at) VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (endpoint) DO UPDATE SET profile_id = EXCLUDED.profile_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`,
		s.ProfileID, s.Endpoint, s.P256dh, s.Auth)
	return err
}

// DeleteByEndpoint removes a subscription, typically after a 410 from the
// push service.
func (r *Repository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

// DeleteForProfile removes one of a profile's own subscriptions. The
// profile predicate stops a client from unsubscribing someone else's
// endpoint.
func (r *Repository) DeleteForProfile(ctx context.Context, profileID, endpoint string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE profile_id = $1 AND endpoint = $2`, profileID, endpoint)
	return err
}

// ListAll returns every stored subscription for a broadcast fan-out.
func (r *Repository) ListAll(ctx context.Context) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, profile_id, endpoint, p256dh, auth, created_at FROM push_subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.ProfileID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// ListForProfile returns the subscriptions registered by one client.
func (r *Repository) ListForProfile(ctx context.Context, profileID string) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, profile_id, endpoint, p256dh, auth, created_at FROM push_subscriptions WHERE profile_id = $1 ORDER BY id`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.ProfileID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
