package push_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meridianfit/meridian/internal/push"
	_ "github.com/meridianfit/meridian/testing"
)

type memSubRepo struct {
	subs map[string]push.Subscription
}

func newMemSubRepo(subs ...push.Subscription) *memSubRepo {
	repo := &memSubRepo{subs: make(map[string]push.Subscription)}
	for _, s := range subs {
		repo.subs[s.Endpoint] = s
	}
	return repo
}

func (r *memSubRepo) Upsert(ctx context.Context, s push.Subscription) error {
	r.subs[s.Endpoint] = s
	return nil
}

func (r *memSubRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	delete(r.subs, endpoint)
	return nil
}

func (r *memSubRepo) DeleteForProfile(ctx context.Context, profileID, endpoint string) error {
	if s, ok := r.subs[endpoint]; ok && s.ProfileID == profileID {
		delete(r.subs, endpoint)
	}
	return nil
}

func (r *memSubRepo) ListAll(ctx context.Context) ([]push.Subscription, error) {
	out := make([]push.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out, nil
}

func (r *memSubRepo) ListForProfile(ctx context.Context, profileID string) ([]push.Subscription, error) {
	var out []push.Subscription
	for _, s := range r.subs {
		if s.ProfileID == profileID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeSender struct {
	gone   map[string]bool
	failed map[string]bool
	sent   []string
}

func (s *fakeSender) Send(ctx context.Context, sub push.Subscription, msg push.Message) error {
	if s.gone[sub.Endpoint] {
		return push.ErrGone
	}
	if s.failed[sub.Endpoint] {
		return errors.New("boom")
	}
	s.sent = append(s.sent, sub.Endpoint)
	return nil
}

func TestSubscribeRequiresCompletePayload(t *testing.T) {
	svc := push.NewService(newMemSubRepo(), nil, nil, nil)
	err := svc.Subscribe(context.Background(), push.Subscription{ProfileID: "c1", Endpoint: "https://push.example/1"})
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
}

func TestSubscribeUpsertsByEndpoint(t *testing.T) {
	repo := newMemSubRepo()
	svc := push.NewService(repo, nil, nil, nil)

	sub := push.Subscription{ProfileID: "c1", Endpoint: "https://push.example/1", P256dh: "p", Auth: "a"}
	if err := svc.Subscribe(context.Background(), sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.ProfileID = "c2"
	if err := svc.Subscribe(context.Background(), sub); err != nil {
		t.Fatalf("re-subscribe: %v", err)
	}
	if len(repo.subs) != 1 {
		t.Fatalf("expected endpoint upsert, got %d rows", len(repo.subs))
	}
	if repo.subs["https://push.example/1"].ProfileID != "c2" {
		t.Fatal("expected profile takeover on re-subscribe")
	}
}

func TestUnsubscribeOnlyRemovesOwnEndpoint(t *testing.T) {
	repo := newMemSubRepo(
		push.Subscription{ProfileID: "c1", Endpoint: "c1-phone", P256dh: "p", Auth: "a"},
		push.Subscription{ProfileID: "c2", Endpoint: "c2-phone", P256dh: "p", Auth: "a"},
	)
	svc := push.NewService(repo, nil, nil, nil)

	if err := svc.Unsubscribe(context.Background(), "c1", "c2-phone"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, ok := repo.subs["c2-phone"]; !ok {
		t.Fatal("another profile's subscription must survive")
	}
	if err := svc.Unsubscribe(context.Background(), "c1", "c1-phone"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, ok := repo.subs["c1-phone"]; ok {
		t.Fatal("own subscription must be removed")
	}
}

func TestBroadcastPrunesGoneEndpoints(t *testing.T) {
	repo := newMemSubRepo(
		push.Subscription{ProfileID: "c1", Endpoint: "ok-1", P256dh: "p", Auth: "a"},
		push.Subscription{ProfileID: "c2", Endpoint: "gone-1", P256dh: "p", Auth: "a"},
		push.Subscription{ProfileID: "c3", Endpoint: "bad-1", P256dh: "p", Auth: "a"},
	)
	sender := &fakeSender{gone: map[string]bool{"gone-1": true}, failed: map[string]bool{"bad-1": true}}
	svc := push.NewService(repo, sender, nil, nil)

	delivered, err := svc.Broadcast(context.Background(), push.Message{Title: "hi", Body: "there"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
	if _, ok := repo.subs["gone-1"]; ok {
		t.Fatal("gone endpoint must be pruned")
	}
	if _, ok := repo.subs["bad-1"]; !ok {
		t.Fatal("transient failure must not prune the endpoint")
	}
}

func TestNotifyTargetsOneProfile(t *testing.T) {
	repo := newMemSubRepo(
		push.Subscription{ProfileID: "c1", Endpoint: "c1-phone", P256dh: "p", Auth: "a"},
		push.Subscription{ProfileID: "c1", Endpoint: "c1-laptop", P256dh: "p", Auth: "a"},
		push.Subscription{ProfileID: "c2", Endpoint: "c2-phone", P256dh: "p", Auth: "a"},
	)
	sender := &fakeSender{}
	svc := push.NewService(repo, sender, nil, nil)

	delivered, err := svc.Notify(context.Background(), "c1", push.Message{Title: "hi", Body: "you"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	for _, endpoint := range sender.sent {
		if endpoint == "c2-phone" {
			t.Fatal("notify must not reach other profiles")
		}
	}
}
