// Package auth carries the authenticated principal through request contexts
// and provides the reference authentication collaborator: JWT issuance and
// validation, password hashing with account lockout, and rate-limiter stores.
package auth

import (
	"github.com/complia/complia/pkg/model"
)

// Principal is the authenticated entity making a request.
type Principal struct {
	UserID string
	OrgID  string
	Email  string
	Role   model.Role
}

// Can reports whether the principal's role grants at least min.
func (p *Principal) Can(min model.Role) bool {
	return p.Role.AtLeast(min)
}

// IsAdmin reports whether the principal is an organization admin.
func (p *Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}
