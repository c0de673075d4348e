package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianfit/meridian/internal/auth"
	"github.com/meridianfit/meridian/internal/catalog"
	"github.com/meridianfit/meridian/internal/checkins"
	"github.com/meridianfit/meridian/internal/gate"
	"github.com/meridianfit/meridian/internal/observability"
	"github.com/meridianfit/meridian/internal/profiles"
	"github.com/meridianfit/meridian/internal/push"
	"github.com/meridianfit/meridian/internal/shared"
	"github.com/meridianfit/meridian/internal/view"
	"github.com/meridianfit/meridian/jobs"
	"github.com/meridianfit/meridian/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Templates       *view.Engine
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	Gate            *gate.Middleware
	AuthHandler     *auth.Handler
	ProfilesHandler *profiles.Handler
	CatalogHandler  *catalog.Handler
	CheckInsHandler *checkins.Handler
	PushHandler     *push.Handler
	JobHandler      *jobs.Handler
	Profiles        *profiles.Service
	Jobs            *jobs.Client
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Gate:           params.Gate,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Landing page; signed-in visitors go straight to their dashboard.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess != nil && sess.User() != "" {
			http.Redirect(w, r, gate.DashboardPath, http.StatusSeeOther)
			return
		}
		renderPage(params, w, r, "pages/landing.html", "Meridian", nil)
	})

	r.Get("/account", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, gate.LoginPath, http.StatusSeeOther)
			return
		}
		profile, err := params.Profiles.Get(r.Context(), sess.User())
		if err != nil {
			params.Logger.Error("load account profile", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		renderPage(params, w, r, "pages/account.html", "Account", map[string]any{
			"Profile":        profile,
			"VAPIDPublicKey": params.Config.VAPIDPublicKey,
		})
	})

	params.AuthHandler.MountRoutes(r)

	r.Route("/dashboard", params.CheckInsHandler.MountRoutes)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/admin/clients", http.StatusSeeOther)
		})
		r.Route("/clients", params.ProfilesHandler.MountRoutes)
		r.Route("/config", params.CatalogHandler.MountRoutes)
		r.Route("/check-ins", params.CheckInsHandler.MountAdminRoutes)
		r.Get("/broadcast", func(w http.ResponseWriter, r *http.Request) {
			renderPage(params, w, r, "pages/admin/broadcast.html", "Broadcast", nil)
		})
		r.Post("/broadcast", func(w http.ResponseWriter, r *http.Request) {
			handleBroadcast(params, w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/push", params.PushHandler.MountRoutes)
		r.Route("/jobs", params.JobHandler.MountRoutes)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
		// The service worker must be served from the root so its scope covers
		// the whole site.
		r.Get("/sw.js", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, staticFS, "js/sw.js")
		})
	}

	return r
}

func handleBroadcast(params RouterParams, w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	msg := push.Message{
		Title: r.PostFormValue("title"),
		Body:  r.PostFormValue("body"),
		URL:   r.PostFormValue("url"),
	}
	if msg.Title == "" || msg.Body == "" {
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Title and body are required"})
		}
		http.Redirect(w, r, "/admin/broadcast", http.StatusSeeOther)
		return
	}
	if params.Jobs == nil {
		params.Logger.Warn("broadcast requested without a job queue")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if _, err := params.Jobs.EnqueueBroadcast(r.Context(), msg); err != nil {
		params.Logger.Error("enqueue broadcast", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Broadcast queued"})
	}
	http.Redirect(w, r, "/admin/broadcast", http.StatusSeeOther)
}

func renderPage(params RouterParams, w http.ResponseWriter, r *http.Request, page, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if err := params.Templates.Render(w, page, view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}); err != nil {
		params.Logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
