package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/meridianfit/meridian/internal/identity"
	"github.com/meridianfit/meridian/internal/observability"
	"github.com/meridianfit/meridian/internal/profiles"
	"github.com/meridianfit/meridian/internal/shared"
)

// LoginPath is the login surface unauthenticated requests are sent to.
const LoginPath = "/login"

// DashboardPath is the landing surface for denied admin-route access.
const DashboardPath = "/dashboard"

// Middleware evaluates the access policy per request and resolves the
// principal through the identity provider, refreshing session tokens as a
// side effect.
type Middleware struct {
	Provider identity.Provider
	Profiles *profiles.Service
	Sessions *shared.SessionManager
	Routes   Routes
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	failOpenOnce sync.Once
}

// Handler wraps next with the route gate.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if m.Routes.IsExcluded(path) {
			next.ServeHTTP(w, r)
			return
		}

		// Missing provider configuration degrades to fail-open: the gate
		// cannot evaluate anything, and locking out all traffic would be
		// worse. Handlers behind it re-check authorization on writes.
		if m.Provider == nil || !m.Provider.Configured() {
			m.failOpenOnce.Do(func() {
				m.logger().Warn("identity provider unconfigured, route gate failing open")
			})
			m.observe(Continue)
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sess := shared.SessionFromContext(ctx)
		principal, unavailable := m.resolvePrincipal(ctx, sess)
		if unavailable {
			// Provider outage. Locking out all traffic would turn a
			// transient failure into a mass sign-out, so the gate fails
			// open and leaves the session tokens for the next evaluation.
			m.observe(Continue)
			next.ServeHTTP(w, r)
			return
		}

		if principal != nil {
			if m.terminateIfDeactivated(ctx, w, r, sess, principal) {
				return
			}
		}

		decision := Evaluate(m.Routes, path, principal != nil, func() profiles.Role {
			return m.Profiles.RoleFor(ctx, principal.ID)
		})
		m.observe(decision)

		switch decision {
		case RedirectToLogin:
			http.Redirect(w, r, LoginPath+"?next="+url.QueryEscape(path), http.StatusSeeOther)
		case RedirectToDashboardDenied:
			http.Redirect(w, r, DashboardPath+"?error="+url.PathEscape("Access denied"), http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// resolvePrincipal loads the principal behind the session tokens. Refreshed
// tokens are written back to the session; the session middleware propagates
// the updated cookie on commit regardless of the decision taken. The second
// return reports a provider outage; tokens are kept intact in that case and
// only dropped when the provider actively rejected them.
func (m *Middleware) resolvePrincipal(ctx context.Context, sess *shared.Session) (*identity.Principal, bool) {
	if sess == nil {
		return nil, false
	}
	principal, fresh, refreshed, err := m.Provider.CurrentUser(ctx, sess.Tokens())
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNoSession):
		case errors.Is(err, identity.ErrUnavailable):
			m.logger().Warn("identity provider unavailable, failing open", slog.Any("error", err))
			return nil, true
		default:
			m.logger().Warn("resolve principal", slog.Any("error", err))
			// Tokens the provider rejected are dropped so the next
			// evaluation treats the request as anonymous.
			sess.SetTokens(shared.TokenPair{})
			sess.SetUser("")
		}
		return nil, false
	}
	if refreshed {
		sess.SetTokens(fresh)
	}
	if sess.User() == "" {
		sess.SetUser(principal.ID)
	}
	return principal, false
}

// terminateIfDeactivated enforces that a deactivated non-admin never retains a
// session past the next request evaluation. Lookup failures fall through as
// not-deactivated; the admin check still defaults to deny separately.
func (m *Middleware) terminateIfDeactivated(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *shared.Session, principal *identity.Principal) bool {
	profile, err := m.Profiles.Get(ctx, principal.ID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			m.logger().Warn("deactivation check", slog.Any("error", err))
		}
		return false
	}
	if !profile.IsDeactivated || profile.Role == profiles.RoleAdmin {
		return false
	}
	if err := m.Provider.SignOut(ctx, sess.Tokens()); err != nil {
		m.logger().Warn("sign out deactivated principal", slog.Any("error", err))
	}
	m.Sessions.Destroy(sess)
	http.Redirect(w, r, LoginPath+"?error=account_deactivated", http.StatusSeeOther)
	return true
}

func (m *Middleware) observe(d Decision) {
	if m.Metrics != nil {
		m.Metrics.ObserveGateDecision(d.String())
	}
}

func (m *Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
