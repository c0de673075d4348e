package checkins

import "time"

// CheckIn is a weekly progress report submitted by a client.
type CheckIn struct {
	ID        int64
	ProfileID string  `validate:"required"`
	WeightKg  float64 `validate:"gt=0,lte=500"`
	Energy    int     `validate:"min=1,max=5"`
	Adherence int     `validate:"min=0,max=100"`
	Notes     string  `validate:"max=2000"`
	CreatedAt time.Time
}

// Summary aggregates a client's recent progress for the dashboard.
type Summary struct {
	Count          int
	LatestWeightKg float64
	WeightDeltaKg  float64
	LastCheckInAt  *time.Time
}

// ProgressPhoto is a client-uploaded progress picture. Data is only
// populated when a single photo is fetched for serving.
type ProgressPhoto struct {
	ID          int64
	ProfileID   string `validate:"required"`
	ContentType string `validate:"required,oneof=image/jpeg image/png image/webp"`
	Caption     string `validate:"max=120"`
	Data        []byte `validate:"required,max=5242880"`
	CreatedAt   time.Time
}
