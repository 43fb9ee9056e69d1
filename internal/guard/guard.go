// Package guard implements role-based route access decisions.
package guard

import (
	"shopfront/internal/domain"
)

// Policy is the role-based access rule attached to a navigable route.
// A route with neither allowed nor restricted roles is public.
type Policy struct {
	Allowed    []domain.Role
	Restricted []domain.Role
}

// Public reports whether the policy places no constraint at all.
func (p Policy) Public() bool {
	return len(p.Allowed) == 0 && len(p.Restricted) == 0
}

func contains(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Decision is the outcome of a guard check: either Allow, or a redirect
// to Path.
type Decision struct {
	Allow bool
	Path  string
}

// Allow is the decision that lets the request through.
var Allow = Decision{Allow: true}

// RedirectTo builds a redirect decision.
func RedirectTo(path string) Decision {
	return Decision{Path: path}
}

// Decide maps (session, policy) to an access decision. The ordering is
// load-bearing: restriction checks outrank allowed-role checks, and an
// authenticated visitor with the wrong role is redirected home, never
// shown an error.
func Decide(session domain.Session, policy Policy) Decision {
	if policy.Public() {
		return Allow
	}

	if session.Anonymous() {
		// restriction-only routes stay reachable anonymously
		if len(policy.Allowed) > 0 {
			return RedirectTo("/")
		}
		return Allow
	}

	if contains(policy.Restricted, session.Role) {
		if session.Role == domain.RoleAdmin {
			return RedirectTo("/admin")
		}
		return RedirectTo("/")
	}

	if len(policy.Allowed) > 0 && !contains(policy.Allowed, session.Role) {
		return RedirectTo("/")
	}

	return Allow
}
