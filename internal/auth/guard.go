package auth

import "fmt"

// Requirement is the static role/permission metadata declared on a protected
// operation. It is resolved once when routes are registered, never per call.
type Requirement struct {
	Roles       []RoleKind
	Permissions []string
}

// Empty reports whether the requirement declares no constraints.
func (req Requirement) Empty() bool {
	return len(req.Roles) == 0 && len(req.Permissions) == 0
}

// Guard evaluates a principal against an operation's declared requirements.
// It is stateless; a single Guard serves all routes.
type Guard struct{}

// NewGuard constructs a Guard.
func NewGuard() Guard { return Guard{} }

// Authorize allows the call when every declared constraint is satisfied.
// With no constraints declared, access is allowed. A missing principal fails
// with ErrUnauthorized. A principal whose primary role is RoleAdmin satisfies
// any role requirement; declared permissions must all be present in the union
// of the principal's held roles' permission sets.
func (Guard) Authorize(principal *User, req Requirement) error {
	if req.Empty() {
		return nil
	}
	if principal == nil {
		return fmt.Errorf("%w: no authenticated principal", ErrUnauthorized)
	}

	if len(req.Roles) > 0 && principal.Role != RoleAdmin {
		matched := false
		for _, role := range req.Roles {
			if principal.Role == role {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: role %s is not permitted", ErrForbidden, principal.Role)
		}
	}

	if len(req.Permissions) > 0 {
		held := principal.PermissionSet()
		for _, perm := range req.Permissions {
			if _, ok := held[perm]; !ok {
				return fmt.Errorf("%w: missing permission %s", ErrForbidden, perm)
			}
		}
	}
	return nil
}
