package checkins_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianfit/meridian/internal/checkins"
	"github.com/meridianfit/meridian/internal/shared"
	_ "github.com/meridianfit/meridian/testing"
)

type memCheckInRepo struct {
	items  []checkins.CheckIn
	photos []checkins.ProgressPhoto
}

func (r *memCheckInRepo) Create(ctx context.Context, c checkins.CheckIn) (checkins.CheckIn, error) {
	c.ID = int64(len(r.items) + 1)
	c.CreatedAt = time.Now()
	r.items = append([]checkins.CheckIn{c}, r.items...)
	return c, nil
}

func (r *memCheckInRepo) ListForProfile(ctx context.Context, profileID string, limit int) ([]checkins.CheckIn, error) {
	var out []checkins.CheckIn
	for _, c := range r.items {
		if c.ProfileID == profileID {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memCheckInRepo) ListRecent(ctx context.Context, limit int) ([]checkins.CheckIn, error) {
	if limit > 0 && len(r.items) > limit {
		return r.items[:limit], nil
	}
	return r.items, nil
}

func (r *memCheckInRepo) CreatePhoto(ctx context.Context, p checkins.ProgressPhoto) (checkins.ProgressPhoto, error) {
	p.ID = int64(len(r.photos) + 1)
	p.CreatedAt = time.Now()
	r.photos = append([]checkins.ProgressPhoto{p}, r.photos...)
	return p, nil
}

func (r *memCheckInRepo) ListPhotos(ctx context.Context, profileID string, limit int) ([]checkins.ProgressPhoto, error) {
	var out []checkins.ProgressPhoto
	for _, p := range r.photos {
		if p.ProfileID == profileID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memCheckInRepo) GetPhoto(ctx context.Context, id int64, profileID string) (checkins.ProgressPhoto, error) {
	for _, p := range r.photos {
		if p.ID == id && p.ProfileID == profileID {
			return p, nil
		}
	}
	return checkins.ProgressPhoto{}, shared.ErrNotFound
}

func TestSubmitValidation(t *testing.T) {
	svc := checkins.NewService(&memCheckInRepo{})

	cases := []struct {
		name string
		in   checkins.CheckIn
	}{
		{name: "missing profile", in: checkins.CheckIn{WeightKg: 80, Energy: 3, Adherence: 90}},
		{name: "zero weight", in: checkins.CheckIn{ProfileID: "c1", WeightKg: 0, Energy: 3, Adherence: 90}},
		{name: "absurd weight", in: checkins.CheckIn{ProfileID: "c1", WeightKg: 900, Energy: 3, Adherence: 90}},
		{name: "energy too low", in: checkins.CheckIn{ProfileID: "c1", WeightKg: 80, Energy: 0, Adherence: 90}},
		{name: "energy too high", in: checkins.CheckIn{ProfileID: "c1", WeightKg: 80, Energy: 6, Adherence: 90}},
		{name: "adherence negative", in: checkins.CheckIn{ProfileID: "c1", WeightKg: 80, Energy: 3, Adherence: -1}},
		{name: "adherence above 100", in: checkins.CheckIn{ProfileID: "c1", WeightKg: 80, Energy: 3, Adherence: 101}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), tc.in); !errors.Is(err, checkins.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmitAndSummarize(t *testing.T) {
	repo := &memCheckInRepo{}
	svc := checkins.NewService(repo)

	for _, w := range []float64{92.0, 91.2, 90.5} {
		if _, err := svc.Submit(context.Background(), checkins.CheckIn{ProfileID: "c1", WeightKg: w, Energy: 3, Adherence: 85}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	summary, err := svc.Summarize(context.Background(), "c1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Count != 3 {
		t.Fatalf("expected 3 check-ins, got %d", summary.Count)
	}
	if summary.LatestWeightKg != 90.5 {
		t.Fatalf("expected latest 90.5, got %v", summary.LatestWeightKg)
	}
	if delta := summary.WeightDeltaKg; delta > -1.4 || delta < -1.6 {
		t.Fatalf("expected delta of -1.5, got %v", delta)
	}
	if summary.LastCheckInAt == nil {
		t.Fatal("expected last check-in time")
	}
}

func TestAddPhotoValidation(t *testing.T) {
	svc := checkins.NewService(&memCheckInRepo{})

	cases := []struct {
		name string
		in   checkins.ProgressPhoto
	}{
		{name: "missing profile", in: checkins.ProgressPhoto{ContentType: "image/jpeg", Data: []byte("x")}},
		{name: "empty image", in: checkins.ProgressPhoto{ProfileID: "c1", ContentType: "image/jpeg"}},
		{name: "wrong content type", in: checkins.ProgressPhoto{ProfileID: "c1", ContentType: "application/pdf", Data: []byte("x")}},
		{name: "oversized image", in: checkins.ProgressPhoto{ProfileID: "c1", ContentType: "image/png", Data: make([]byte, checkins.MaxPhotoBytes+1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddPhoto(context.Background(), tc.in); !errors.Is(err, checkins.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPhotoOwnershipScope(t *testing.T) {
	repo := &memCheckInRepo{}
	svc := checkins.NewService(repo)

	stored, err := svc.AddPhoto(context.Background(), checkins.ProgressPhoto{ProfileID: "c1", ContentType: "image/jpeg", Data: []byte("jpegbytes")})
	if err != nil {
		t.Fatalf("add photo: %v", err)
	}
	if _, err := svc.Photo(context.Background(), stored.ID, "c1"); err != nil {
		t.Fatalf("owner fetch: %v", err)
	}
	if _, err := svc.Photo(context.Background(), stored.ID, "c2"); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found for other profile, got %v", err)
	}
}

func TestSummarizeEmptyHistory(t *testing.T) {
	svc := checkins.NewService(&memCheckInRepo{})
	summary, err := svc.Summarize(context.Background(), "c1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Count != 0 || summary.LastCheckInAt != nil {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}
