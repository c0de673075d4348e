package auth

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridianfit/meridian/internal/gate"
	"github.com/meridianfit/meridian/internal/identity"
	"github.com/meridianfit/meridian/internal/shared"
	"github.com/meridianfit/meridian/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	provider       identity.Provider
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, provider identity.Provider, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		provider:       provider,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/auth/callback", h.handleCallback)
	r.Get("/reset-password", h.showResetPassword)
	r.Post("/reset-password", h.handleResetPassword)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Next   string
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	errors := make(map[string]string)
	switch r.URL.Query().Get("error") {
	case "":
	case ErrAccountDeactivated:
		errors["general"] = "Your account has been deactivated. Contact your coach for details."
	case ErrAuthFailed:
		errors["general"] = "Sign-in link is invalid or has expired. Please try again."
	default:
		errors["general"] = r.URL.Query().Get("error")
	}
	h.renderLogin(w, r, loginPageData{Next: safeNext(r.URL.Query().Get("next")), Errors: errors}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	next := safeNext(r.PostFormValue("next"))

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errors[fieldErr.Field()] = fieldErr.Error()
		}
	}

	if len(errors) == 0 {
		principal, tokens, err := h.provider.PasswordGrant(r.Context(), form.Email, form.Password)
		if err != nil {
			errors["general"] = "Invalid email or password"
		} else {
			if sess == nil {
				h.logger.Error("session missing during login")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			sess.SetUser(principal.ID)
			sess.SetTokens(tokens)
			h.finishSignIn(w, r, sess, principal, tokens, next, false)
			return
		}
	}

	h.renderLogin(w, r, loginPageData{Form: form, Next: next, Errors: errors}, http.StatusBadRequest)
}

// handleCallback runs once after the identity provider redirects back with a
// one-time code. A recovery-flavored callback always lands on the
// password-setup surface, bypassing the invitation message.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, gate.LoginPath+"?error="+ErrAuthFailed, http.StatusSeeOther)
		return
	}

	principal, tokens, err := h.provider.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Warn("code exchange failed", slog.Any("error", err))
		http.Redirect(w, r, gate.LoginPath+"?error="+ErrAuthFailed, http.StatusSeeOther)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during callback")
		http.Redirect(w, r, gate.LoginPath+"?error="+ErrAuthFailed, http.StatusSeeOther)
		return
	}
	sess.SetUser(principal.ID)
	sess.SetTokens(tokens)

	recovery := r.URL.Query().Get("type") == "recovery"
	next := safeNext(r.URL.Query().Get("next"))
	h.finishSignIn(w, r, sess, principal, tokens, next, recovery)
}

// finishSignIn applies the reconciliation outcome to the response.
func (h *Handler) finishSignIn(w http.ResponseWriter, r *http.Request, sess *shared.Session, principal *identity.Principal, tokens shared.TokenPair, next string, recovery bool) {
	if recovery {
		http.Redirect(w, r, "/reset-password", http.StatusSeeOther)
		return
	}
	switch h.service.Reconcile(r.Context(), principal, tokens) {
	case OutcomeDeactivated:
		h.sessionManager.Destroy(sess)
		http.Redirect(w, r, gate.LoginPath+"?error="+ErrAccountDeactivated, http.StatusSeeOther)
	case OutcomeInvited:
		http.Redirect(w, r, "/reset-password?message="+url.PathEscape(WelcomeMessage), http.StatusSeeOther)
	default:
		if next == "" {
			next = gate.DashboardPath
		}
		http.Redirect(w, r, next, http.StatusSeeOther)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.provider.SignOut(r.Context(), sess.Tokens()); err != nil {
			h.logger.Warn("provider sign out", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type resetPageData struct {
	Message string
	Errors  map[string]string
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	h.renderReset(w, r, resetPageData{Message: r.URL.Query().Get("message"), Errors: map[string]string{}}, http.StatusOK)
}

type resetForm struct {
	Password string `validate:"required,min=8"`
	Confirm  string `validate:"required,eqfield=Password"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.Tokens().AccessToken == "" {
		http.Redirect(w, r, gate.LoginPath, http.StatusSeeOther)
		return
	}

	form := resetForm{
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	errors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errors[fieldErr.Field()] = fieldErr.Error()
		}
	}
	if len(errors) > 0 {
		h.renderReset(w, r, resetPageData{Errors: errors}, http.StatusBadRequest)
		return
	}

	if err := h.provider.UpdatePassword(r.Context(), sess.Tokens(), form.Password); err != nil {
		h.logger.Warn("update password", slog.Any("error", err))
		h.renderReset(w, r, resetPageData{Errors: map[string]string{"general": "Could not update your password. Please try again."}}, http.StatusBadRequest)
		return
	}

	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Password updated"})
	http.Redirect(w, r, gate.DashboardPath, http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	h.render(w, r, "pages/login.html", "Sign in", data, status)
}

func (h *Handler) renderReset(w http.ResponseWriter, r *http.Request, data resetPageData, status int) {
	h.render(w, r, "pages/reset_password.html", "Set password", data, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// safeNext only allows same-site relative destinations.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleCallbackForTest exposes the callback handler for tests.
func (h *Handler) HandleCallbackForTest(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r)
}
