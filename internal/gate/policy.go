// Package gate implements the role-based route-authorization policy. Every
// page request passes through it before reaching a handler; asset and API
// paths are excluded and bypass evaluation entirely.
package gate

import (
	"strings"

	"github.com/meridianfit/meridian/internal/profiles"
)

// Decision is the outcome of evaluating the access policy for one request.
type Decision int

const (
	// Continue lets the request through to the handler.
	Continue Decision = iota
	// RedirectToLogin sends an unauthenticated request to the login surface.
	RedirectToLogin
	// RedirectToDashboardDenied bounces a non-admin off an admin-only route
	// with an access-denied indicator for the dashboard UI.
	RedirectToDashboardDenied
)

// String names the decision for logs and metrics.
func (d Decision) String() string {
	switch d {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToDashboardDenied:
		return "redirect_denied"
	default:
		return "continue"
	}
}

// Routes is the static partition of path prefixes. AdminOnly must be a subset
// of Protected; DefaultRoutes keeps that invariant.
type Routes struct {
	Protected []string
	AdminOnly []string
	Excluded  []string
}

// DefaultRoutes returns the application's route classification.
func DefaultRoutes() Routes {
	return Routes{
		Protected: []string{"/dashboard", "/account", "/admin"},
		AdminOnly: []string{"/admin"},
		Excluded:  []string{"/static", "/images", "/api", "/favicon.ico", "/healthz", "/metrics"},
	}
}

// IsExcluded reports whether the path bypasses policy evaluation.
func (r Routes) IsExcluded(path string) bool {
	return matchAny(r.Excluded, path)
}

// IsProtected reports whether the path requires an authenticated principal.
func (r Routes) IsProtected(path string) bool {
	return matchAny(r.Protected, path)
}

// IsAdminOnly reports whether the path additionally requires the admin role.
func (r Routes) IsAdminOnly(path string) bool {
	return matchAny(r.AdminOnly, path)
}

// Evaluate applies the policy rules in order. roleOf is invoked lazily, only
// when an admin-only path actually needs the role; implementations default to
// client when the profile lookup fails.
func Evaluate(routes Routes, path string, hasPrincipal bool, roleOf func() profiles.Role) Decision {
	if routes.IsProtected(path) && !hasPrincipal {
		return RedirectToLogin
	}
	if routes.IsAdminOnly(path) && hasPrincipal {
		if roleOf() != profiles.RoleAdmin {
			return RedirectToDashboardDenied
		}
	}
	return Continue
}

// matchAny reports whether path equals a prefix or sits underneath it.
func matchAny(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
