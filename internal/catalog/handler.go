package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianfit/meridian/internal/platform/httpx"
	"github.com/meridianfit/meridian/internal/shared"
)

// Handler exposes the admin config resources as a JSON API. The whole subtree
// lives under /admin and is therefore admin-gated before it is reached.
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

// MountRoutes registers the config resource routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/exercises", func(r chi.Router) {
		r.Get("/", h.listExercises)
		r.Post("/", h.createExercise)
		r.Get("/{id}", h.getExercise)
		r.Put("/{id}", h.updateExercise)
		r.Delete("/{id}", h.deleteExercise)
	})
	r.Route("/foods", func(r chi.Router) {
		r.Get("/", h.listFoods)
		r.Post("/", h.createFood)
		r.Get("/{id}", h.getFood)
		r.Put("/{id}", h.updateFood)
		r.Delete("/{id}", h.deleteFood)
	})
	for _, kind := range []RefKind{KindSupplement, KindMealType, KindCondition, KindPlanTemplate} {
		h.mountRef(r, kind)
	}
}

func (h *Handler) mountRef(r chi.Router, kind RefKind) {
	path := "/" + refPath(kind)
	r.Route(path, func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) { h.listRef(w, req, kind) })
		r.Post("/", func(w http.ResponseWriter, req *http.Request) { h.createRef(w, req, kind) })
		r.Put("/{id}", func(w http.ResponseWriter, req *http.Request) { h.updateRef(w, req, kind) })
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) { h.deleteRef(w, req, kind) })
	})
}

// refPath maps a kind to its URL segment.
func refPath(kind RefKind) string {
	switch kind {
	case KindMealType:
		return "meal-types"
	case KindPlanTemplate:
		return "plan-templates"
	default:
		return string(kind)
	}
}

func (h *Handler) listExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.service.ListExercises(r.Context())
	if err != nil {
		h.respondError(w, "list exercises", err)
		return
	}
	httpx.JSON(w, http.StatusOK, exercises)
}

func (h *Handler) getExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	exercise, err := h.service.GetExercise(r.Context(), id)
	if err != nil {
		h.respondError(w, "get exercise", err)
		return
	}
	httpx.JSON(w, http.StatusOK, exercise)
}

func (h *Handler) createExercise(w http.ResponseWriter, r *http.Request) {
	var e Exercise
	if err := httpx.DecodeJSON(r, &e); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	created, err := h.service.CreateExercise(r.Context(), h.actorID(r), e)
	if err != nil {
		h.respondError(w, "create exercise", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var e Exercise
	if err := httpx.DecodeJSON(r, &e); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	e.ID = id
	if err := h.service.UpdateExercise(r.Context(), h.actorID(r), e); err != nil {
		h.respondError(w, "update exercise", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) deleteExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteExercise(r.Context(), h.actorID(r), id); err != nil {
		h.respondError(w, "delete exercise", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := h.service.ListFoods(r.Context())
	if err != nil {
		h.respondError(w, "list foods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, foods)
}

func (h *Handler) getFood(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	food, err := h.service.GetFood(r.Context(), id)
	if err != nil {
		h.respondError(w, "get food", err)
		return
	}
	httpx.JSON(w, http.StatusOK, food)
}

func (h *Handler) createFood(w http.ResponseWriter, r *http.Request) {
	var f Food
	if err := httpx.DecodeJSON(r, &f); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	created, err := h.service.CreateFood(r.Context(), h.actorID(r), f)
	if err != nil {
		h.respondError(w, "create food", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateFood(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var f Food
	if err := httpx.DecodeJSON(r, &f); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	f.ID = id
	if err := h.service.UpdateFood(r.Context(), h.actorID(r), f); err != nil {
		h.respondError(w, "update food", err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) deleteFood(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteFood(r.Context(), h.actorID(r), id); err != nil {
		h.respondError(w, "delete food", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRef(w http.ResponseWriter, r *http.Request, kind RefKind) {
	items, err := h.service.ListRef(r.Context(), kind)
	if err != nil {
		h.respondError(w, "list "+string(kind), err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createRef(w http.ResponseWriter, r *http.Request, kind RefKind) {
	var item RefItem
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	created, err := h.service.CreateRef(r.Context(), h.actorID(r), kind, item)
	if err != nil {
		h.respondError(w, "create "+string(kind), err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateRef(w http.ResponseWriter, r *http.Request, kind RefKind) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var item RefItem
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	item.ID = id
	if err := h.service.UpdateRef(r.Context(), h.actorID(r), kind, item); err != nil {
		h.respondError(w, "update "+string(kind), err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteRef(w http.ResponseWriter, r *http.Request, kind RefKind) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRef(r.Context(), h.actorID(r), kind, id); err != nil {
		h.respondError(w, "delete "+string(kind), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) actorID(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "an entry with that name already exists")
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnknownKind):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
