package profiles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianfit/meridian/internal/shared"
	"github.com/meridianfit/meridian/internal/view"
)

// InviteNotifier delivers the invitation message out of band.
type InviteNotifier interface {
	NotifyInvite(ctx context.Context, email, code string) error
}

// Handler wires the admin client-management endpoints. The route gate already
// restricts /admin to admins; mutations still re-check the actor's session.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	notifier  InviteNotifier
}

// NewHandler constructs a Handler instance. notifier may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, notifier InviteNotifier) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, notifier: notifier}
}

// MountRoutes registers client-management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/reactivate", h.reactivate)
	r.Post("/{id}/invite", h.invite)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	filters := ListFilters{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
		Role:   r.URL.Query().Get("role"),
	}
	if raw := r.URL.Query().Get("deactivated"); raw != "" {
		value := raw == "true" || raw == "1"
		filters.Deactivated = &value
	}

	clients, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list profiles", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/admin/clients_list.html", map[string]any{
		"Clients": clients,
		"Filters": filters,
		"Total":   total,
		"Pages":   shared.NewPagination(page, limit, total),
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.Error(w, "Client not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get profile", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/admin/client_detail.html", map[string]any{
		"Client": profile,
	}, http.StatusOK)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	err := h.service.Deactivate(r.Context(), h.actorID(r), id, r.PostFormValue("reason"))
	switch {
	case errors.Is(err, ErrAdminImmune):
		h.redirectWithFlash(w, r, "/admin/clients/"+id, "error", "Admin accounts cannot be deactivated")
	case errors.Is(err, shared.ErrNotFound):
		http.Error(w, "Client not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("deactivate profile", slog.String("id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		h.redirectWithFlash(w, r, "/admin/clients/"+id, "success", "Client deactivated")
	}
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Reactivate(r.Context(), h.actorID(r), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.Error(w, "Client not found", http.StatusNotFound)
			return
		}
		h.logger.Error("reactivate profile", slog.String("id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.redirectWithFlash(w, r, "/admin/clients/"+id, "success", "Client reactivated")
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.Error(w, "Client not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get profile for invite", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	code, err := h.service.Invite(r.Context(), h.actorID(r), id)
	if err != nil {
		h.logger.Error("invite profile", slog.String("id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if h.notifier != nil {
		if err := h.notifier.NotifyInvite(r.Context(), profile.Email, code); err != nil {
			h.logger.Warn("enqueue invite notification", slog.Any("error", err))
		}
	}
	h.redirectWithFlash(w, r, "/admin/clients/"+id, "success", "Invitation sent")
}

func (h *Handler) actorID(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, view.TemplateData{
		Title:       "Clients",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
