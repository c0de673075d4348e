package profiles

import (
	"strings"
	"time"
)

// Role is the closed set of application roles. Values arriving from the store
// are coerced through ParseRole and never trusted raw.
type Role string

const (
	// RoleClient is the default coaching-client role.
	RoleClient Role = "client"
	// RoleAdmin grants access to the back-office.
	RoleAdmin Role = "admin"
)

// ParseRole coerces an external value into the closed enumeration. Anything
// that is not exactly an admin marker becomes client.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleClient
}

// Profile is the application's extended record for a principal.
type Profile struct {
	ID                   string
	Email                string
	FullName             string
	Role                 Role
	IsDeactivated        bool
	DeactivatedAt        *time.Time
	DeactivationReason   string
	InvitedAt            *time.Time
	InvitationAcceptedAt *time.Time
	InviteCodeHash       string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ListFilters represents list page filters for the admin client overview.
type ListFilters struct {
	Page        int
	Limit       int
	Search      string
	Role        string
	Deactivated *bool
}
