package auth

import (
	"errors"
	"testing"
)

func TestGuardAllowsWhenNothingDeclared(t *testing.T) {
	guard := NewGuard()
	if err := guard.Authorize(nil, Requirement{}); err != nil {
		t.Fatalf("empty requirement must allow even without a principal: %v", err)
	}
}

func TestGuardRejectsMissingPrincipal(t *testing.T) {
	guard := NewGuard()
	err := guard.Authorize(nil, Requirement{Roles: []RoleKind{RoleUser}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGuardAdminSatisfiesAnyRoleRequirement(t *testing.T) {
	guard := NewGuard()
	admin := &User{ID: "1", Role: RoleAdmin, Active: true}

	for _, req := range []Requirement{
		{Roles: []RoleKind{RoleUser}},
		{Roles: []RoleKind{RoleAdmin}},
		{Roles: []RoleKind{RoleUser, RoleAdmin}},
	} {
		if err := guard.Authorize(admin, req); err != nil {
			t.Fatalf("admin denied for %v: %v", req.Roles, err)
		}
	}
}

func TestGuardUserRoleMatching(t *testing.T) {
	guard := NewGuard()
	user := &User{ID: "1", Role: RoleUser, Active: true}

	if err := guard.Authorize(user, Requirement{Roles: []RoleKind{RoleUser}}); err != nil {
		t.Fatalf("user denied for declared user role: %v", err)
	}
	err := guard.Authorize(user, Requirement{Roles: []RoleKind{RoleAdmin}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGuardPermissionUnion(t *testing.T) {
	guard := NewGuard()
	user := &User{
		ID:   "1",
		Role: RoleUser,
		Roles: []Role{
			{Name: "reader", Permissions: []string{"read:users"}},
			{Name: "writer", Permissions: []string{"write:users"}},
		},
	}

	if err := guard.Authorize(user, Requirement{Permissions: []string{"read:users", "write:users"}}); err != nil {
		t.Fatalf("union of held permissions should satisfy: %v", err)
	}
	err := guard.Authorize(user, Requirement{Permissions: []string{"read:users", "delete:users"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for missing permission, got %v", err)
	}
}

func TestGuardAdminOverrideDoesNotExtendToPermissions(t *testing.T) {
	// The administrative override applies to role requirements only; declared
	// permissions are still checked against held roles.
	guard := NewGuard()
	admin := &User{ID: "1", Role: RoleAdmin}
	err := guard.Authorize(admin, Requirement{Permissions: []string{"read:reports"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGuardPrincipalWithNoRolesDeniedPermissions(t *testing.T) {
	guard := NewGuard()
	user := &User{ID: "1", Role: RoleUser}
	err := guard.Authorize(user, Requirement{Permissions: []string{"read:users"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
