package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/meridianfit/meridian/internal/observability"
)

// ErrGone indicates the push service no longer knows the endpoint; the
// subscription should be pruned.
var ErrGone = errors.New("push: subscription gone")

// RepositoryPort defines data access methods for subscriptions.
type RepositoryPort interface {
	Upsert(ctx context.Context, s Subscription) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	DeleteForProfile(ctx context.Context, profileID, endpoint string) error
	ListAll(ctx context.Context) ([]Subscription, error)
	ListForProfile(ctx context.Context, profileID string) ([]Subscription, error)
}

// Sender delivers one message to one subscription. Split out so the fan-out
// can be exercised without a real push service.
type Sender interface {
	Send(ctx context.Context, sub Subscription, msg Message) error
}

// VAPIDConfig holds the Web Push server keys.
type VAPIDConfig struct {
	Subscriber string
	PublicKey  string
	PrivateKey string
	TTL        int
}

// WebPushSender sends through the Web Push protocol using VAPID auth.
type WebPushSender struct {
	cfg VAPIDConfig
}

// NewWebPushSender constructs a sender from the VAPID keys.
func NewWebPushSender(cfg VAPIDConfig) *WebPushSender {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * 60 * 12
	}
	return &WebPushSender{cfg: cfg}
}

// Send pushes one message to one endpoint.
func (s *WebPushSender) Send(ctx context.Context, sub Subscription, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	res, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{Auth: sub.Auth, P256dh: sub.P256dh},
	}, &webpush.Options{
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	switch {
	case res.StatusCode == http.StatusGone || res.StatusCode == http.StatusNotFound:
		return ErrGone
	case res.StatusCode >= 400:
		return fmt.Errorf("push: delivery status %d", res.StatusCode)
	}
	return nil
}

var _ Sender = (*WebPushSender)(nil)

// Service stores subscriptions and fans messages out to them.
type Service struct {
	repo    RepositoryPort
	sender  Sender
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds Service instance. sender and metrics may be nil.
func NewService(repo RepositoryPort, sender Sender, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sender: sender, logger: logger, metrics: metrics}
}

// Subscribe stores a device subscription for the client.
func (s *Service) Subscribe(ctx context.Context, sub Subscription) error {
	if sub.ProfileID == "" || sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return errors.New("push: incomplete subscription")
	}
	return s.repo.Upsert(ctx, sub)
}

// Unsubscribe removes one of the client's own device subscriptions. The
// delete is scoped to the profile so an endpoint value from another
// account has no effect.
func (s *Service) Unsubscribe(ctx context.Context, profileID, endpoint string) error {
	return s.repo.DeleteForProfile(ctx, profileID, endpoint)
}

// Broadcast delivers a message to every registered device. Gone endpoints are
// pruned; other delivery failures are logged and skipped so one bad endpoint
// never stalls the fan-out.
func (s *Service) Broadcast(ctx context.Context, msg Message) (delivered int, err error) {
	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return s.fanOut(ctx, subs, msg), nil
}

// Notify delivers a message to one client's devices.
func (s *Service) Notify(ctx context.Context, profileID string, msg Message) (delivered int, err error) {
	subs, err := s.repo.ListForProfile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	return s.fanOut(ctx, subs, msg), nil
}

func (s *Service) fanOut(ctx context.Context, subs []Subscription, msg Message) int {
	if s.sender == nil {
		return 0
	}
	delivered := 0
	for _, sub := range subs {
		err := s.sender.Send(ctx, sub, msg)
		switch {
		case err == nil:
			delivered++
			s.observe("delivered")
		case errors.Is(err, ErrGone):
			s.observe("pruned")
			if err := s.repo.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Warn("prune subscription", slog.Any("error", err))
			}
		default:
			s.observe("failed")
			s.logger.Warn("push delivery", slog.String("endpoint", sub.Endpoint), slog.Any("error", err))
		}
	}
	return delivered
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObservePushDelivery(result)
	}
}
