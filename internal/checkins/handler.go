package checkins

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianfit/meridian/internal/shared"
	"github.com/meridianfit/meridian/internal/view"
)

// Handler serves the client dashboard check-in surfaces.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers dashboard routes. The route gate guarantees a
// principal is present for everything under /dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.dashboard)
	r.Get("/check-in", h.form)
	r.Post("/check-in", h.submit)
	r.Get("/progress", h.progress)
	r.Get("/photos", h.photos)
	r.Post("/photos", h.uploadPhoto)
	r.Get("/photos/{id}/raw", h.servePhoto)
}

// MountAdminRoutes registers the coach-side review listing.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.adminList)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	profileID := h.profileID(r)
	if profileID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	summary, err := h.service.Summarize(r.Context(), profileID)
	if err != nil {
		h.logger.Error("summarize check-ins", slog.Any("error", err))
	}
	h.render(w, r, "pages/dashboard.html", "Dashboard", map[string]any{
		"Summary":      summary,
		"DeniedNotice": r.URL.Query().Get("error"),
	}, http.StatusOK)
}

func (h *Handler) form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/checkin_form.html", "Weekly check-in", map[string]any{
		"Errors": map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	profileID := h.profileID(r)
	if profileID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	weight, _ := strconv.ParseFloat(r.PostFormValue("weight_kg"), 64)
	energy, _ := strconv.Atoi(r.PostFormValue("energy"))
	adherence, _ := strconv.Atoi(r.PostFormValue("adherence"))

	_, err := h.service.Submit(r.Context(), CheckIn{
		ProfileID: profileID,
		WeightKg:  weight,
		Energy:    energy,
		Adherence: adherence,
		Notes:     r.PostFormValue("notes"),
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			h.render(w, r, "pages/checkin_form.html", "Weekly check-in", map[string]any{
				"Errors": map[string]string{"general": err.Error()},
			}, http.StatusBadRequest)
			return
		}
		h.logger.Error("submit check-in", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Check-in recorded"})
	}
	http.Redirect(w, r, "/dashboard/progress", http.StatusSeeOther)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	profileID := h.profileID(r)
	if profileID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	history, err := h.service.History(r.Context(), profileID, 24)
	if err != nil {
		h.logger.Error("list check-ins", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/progress.html", "Progress", map[string]any{
		"History": history,
	}, http.StatusOK)
}

func (h *Handler) photos(w http.ResponseWriter, r *http.Request) {
	profileID := h.profileID(r)
	if profileID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	photos, err := h.service.Photos(r.Context(), profileID, 24)
	if err != nil {
		h.logger.Error("list photos", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/photos.html", "Progress photos", map[string]any{
		"Photos": photos,
		"Errors": map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	profileID := h.profileID(r)
	if profileID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxPhotoBytes+4096)
	if err := r.ParseMultipartForm(MaxPhotoBytes); err != nil {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "missing photo", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("read photo upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	_, err = h.service.AddPhoto(r.Context(), ProgressPhoto{
		ProfileID:   profileID,
		ContentType: header.Header.Get("Content-Type"),
		Caption:     r.FormValue("caption"),
		Data:        data,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			photos, _ := h.service.Photos(r.Context(), profileID, 24)
			h.render(w, r, "pages/photos.html", "Progress photos", map[string]any{
				"Photos": photos,
				"Errors": map[string]string{"general": err.Error()},
			}, http.StatusBadRequest)
			return
		}
		h.logger.Error("store photo", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Photo uploaded"})
	}
	http.Redirect(w, r, "/dashboard/photos", http.StatusSeeOther)
}

func (h *Handler) servePhoto(w http.ResponseWriter, r *http.Request) {
	profileID := h.profileID(r)
	if profileID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	photo, err := h.service.Photo(r.Context(), id, profileID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("fetch photo", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(photo.Data); err != nil {
		h.logger.Debug("write photo", slog.Any("error", err))
	}
}

func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recent, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent check-ins", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/admin/checkins_list.html", "Check-ins", map[string]any{
		"CheckIns": recent,
	}, http.StatusOK)
}

func (h *Handler) profileID(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data map[string]any, status int) {
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
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
