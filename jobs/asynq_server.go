package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/meridianfit/meridian/internal/platform/httpx"
	"github.com/meridianfit/meridian/internal/push"
	"github.com/meridianfit/meridian/internal/shared"
)

// Mailer delivers outbound email. The worker only needs invitation delivery.
type Mailer interface {
	SendInvite(ctx context.Context, email, code string) error
}

// LogMailer writes invitation emails to the log. Used when no SMTP relay is
// configured; the invite code still reaches the operator via the worker log.
type LogMailer struct {
	Logger *slog.Logger
}

// SendInvite logs the invitation instead of sending it.
func (m LogMailer) SendInvite(_ context.Context, email, code string) error {
	m.Logger.Info("invite email", slog.String("email", email), slog.String("code", code))
	return nil
}

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Push      *push.Service
	Mailer    Mailer
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	if cfg.Push != nil {
		mux.HandleFunc(TaskPushBroadcast, handleBroadcastTask(cfg.Push))
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = LogMailer{Logger: cfg.Logger}
	}
	mux.HandleFunc(TaskSendInvite, handleInviteTask(mailer))
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// DefaultCron returns the recurring schedules the worker registers out of the box.
func DefaultCron() ([]CronRegistration, error) {
	reminder, err := ReminderTask()
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: CronCheckInReminder, Task: reminder, Options: []asynq.Option{asynq.Queue(QueueDefault)}},
	}, nil
}

func handleBroadcastTask(svc *push.Service) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload BroadcastPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("broadcast payload: %w", err)
		}
		if payload.ProfileID != "" {
			_, err := svc.Notify(ctx, payload.ProfileID, payload.Message)
			return err
		}
		_, err := svc.Broadcast(ctx, payload.Message)
		return err
	}
}

func handleInviteTask(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload InvitePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invite payload: %w", err)
		}
		return mailer.SendInvite(ctx, payload.Email, payload.Code)
	}
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Handler exposes HTTP endpoints for job observability. API routes bypass
// the route gate, so each endpoint re-checks the session itself.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + itoa(pending) + `}`))
}

func itoa(i int) string {
	return strconv.FormatInt(int64(i), 10)
}
