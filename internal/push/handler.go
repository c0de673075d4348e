package push

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianfit/meridian/internal/platform/httpx"
	"github.com/meridianfit/meridian/internal/shared"
)

// Handler exposes the subscription API. API routes bypass the route gate, so
// each endpoint re-checks the session itself.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers subscription routes under /api/push.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/subscribe", h.subscribe)
	r.Post("/unsubscribe", h.unsubscribe)
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	err := h.service.Subscribe(r.Context(), Subscription{
		ProfileID: profileID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
	})
	if err != nil {
		h.logger.Error("subscribe", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Subscription Failed", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.Unsubscribe(r.Context(), profileID, req.Endpoint); err != nil {
		h.logger.Error("unsubscribe", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return "", false
	}
	return sess.User(), true
}
