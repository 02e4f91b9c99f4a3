package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type stubRoleDirectory struct {
	mu          sync.Mutex
	seq         int
	byID        map[string]*Role
	byName      map[string]*Role
	assignments map[string]map[string]struct{} // userID -> roleIDs
}

func newStubRoleDirectory() *stubRoleDirectory {
	return &stubRoleDirectory{
		byID:        make(map[string]*Role),
		byName:      make(map[string]*Role),
		assignments: make(map[string]map[string]struct{}),
	}
}

func (d *stubRoleDirectory) Create(_ context.Context, role *Role) (*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byName[role.Name]; ok {
		return nil, ErrConflict
	}
	d.seq++
	role.ID = fmt.Sprintf("role-%d", d.seq)
	clone := *role
	d.byID[role.ID] = &clone
	d.byName[role.Name] = &clone
	return role, nil
}

func (d *stubRoleDirectory) FindByID(_ context.Context, id string) (*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.byID[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (d *stubRoleDirectory) FindByName(_ context.Context, name string) (*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.byName[name]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (d *stubRoleDirectory) List(_ context.Context) ([]*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Role, 0, len(d.byID))
	for _, r := range d.byID {
		clone := *r
		out = append(out, &clone)
	}
	return out, nil
}

func (d *stubRoleDirectory) Save(_ context.Context, role *Role) (*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.byID[role.ID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(d.byName, old.Name)
	clone := *role
	d.byID[role.ID] = &clone
	d.byName[role.Name] = &clone
	return role, nil
}

func (d *stubRoleDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(d.byName, r.Name)
	delete(d.byID, id)
	return nil
}

func (d *stubRoleDirectory) Assign(_ context.Context, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[roleID]; !ok {
		return ErrNotFound
	}
	if d.assignments[userID] == nil {
		d.assignments[userID] = make(map[string]struct{})
	}
	d.assignments[userID][roleID] = struct{}{}
	return nil
}

func (d *stubRoleDirectory) Unassign(_ context.Context, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.assignments[userID], roleID)
	return nil
}

func (d *stubRoleDirectory) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Role
	for roleID := range d.assignments[userID] {
		if r, ok := d.byID[roleID]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newTestAdmin(t *testing.T) (*AdminService, *stubDirectory, *stubRoleDirectory) {
	t.Helper()
	directory := newStubDirectory()
	roles := newStubRoleDirectory()
	admin, err := NewAdminService(directory, roles, NewHasher(4), nil)
	if err != nil {
		t.Fatalf("NewAdminService: %v", err)
	}
	return admin, directory, roles
}

func seedUser(t *testing.T, directory *stubDirectory, email string) *User {
	t.Helper()
	user := &User{
		ID:     "user-" + email,
		Email:  email,
		Role:   RoleUser,
		Active: true,
	}
	if _, err := directory.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestAdminCreateUser(t *testing.T) {
	admin, directory, _ := newTestAdmin(t)
	ctx := context.Background()

	created, err := admin.CreateUser(ctx, Registration{
		Email:    "ops@x.com",
		Password: "password123",
		Role:     RoleAdmin,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.Role != RoleAdmin || !created.Active {
		t.Fatalf("unexpected user: %+v", created)
	}
	stored, err := directory.FindByEmail(ctx, "ops@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if stored.PasswordHash == "password123" || stored.PasswordHash == "" {
		t.Fatalf("password was not hashed")
	}

	if _, err := admin.CreateUser(ctx, Registration{Email: "ops@x.com", Password: "password123"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := admin.CreateUser(ctx, Registration{Email: "bad", Password: "password123"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := admin.CreateUser(ctx, Registration{Email: "b@x.com", Password: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestAdminUpdateUserEmailConflict(t *testing.T) {
	admin, directory, _ := newTestAdmin(t)
	ctx := context.Background()
	seedUser(t, directory, "a@x.com")
	other := seedUser(t, directory, "b@x.com")

	email := "a@x.com"
	_, err := admin.UpdateUser(ctx, other.ID, UserUpdate{Email: &email})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdminUpdateUserRehashesPassword(t *testing.T) {
	admin, directory, _ := newTestAdmin(t)
	ctx := context.Background()
	user := seedUser(t, directory, "a@x.com")

	password := "newpw12345"
	if _, err := admin.UpdateUser(ctx, user.ID, UserUpdate{Password: &password}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	stored, _ := directory.FindByID(ctx, user.ID)
	if stored.PasswordHash == password || stored.PasswordHash == "" {
		t.Fatalf("password was not hashed")
	}
	if !NewHasher(4).Verify(password, stored.PasswordHash) {
		t.Fatalf("stored hash does not verify against new password")
	}
}

func TestAdminSetUserActive(t *testing.T) {
	admin, directory, _ := newTestAdmin(t)
	ctx := context.Background()
	user := seedUser(t, directory, "a@x.com")

	view, err := admin.SetUserActive(ctx, user.ID, false)
	if err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if view.Active {
		t.Fatalf("expected inactive user")
	}
}

func TestAdminUnknownUserIsNotFound(t *testing.T) {
	admin, _, _ := newTestAdmin(t)
	if _, err := admin.GetUser(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := admin.DeleteUser(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminCreateRoleDeduplicatesPermissions(t *testing.T) {
	admin, _, _ := newTestAdmin(t)
	role, err := admin.CreateRole(context.Background(), "auditor", "", []string{"read:users", "read:users", " ", "read:reports"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("expected deduplicated permissions, got %v", role.Permissions)
	}
}

func TestAdminCreateRoleAssignsUniqueIDs(t *testing.T) {
	admin, _, _ := newTestAdmin(t)
	ctx := context.Background()
	first, err := admin.CreateRole(ctx, "auditor", "", nil)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	second, err := admin.CreateRole(ctx, "support", "", nil)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if first.ID == "" || second.ID == "" {
		t.Fatalf("expected generated role ids, got %q and %q", first.ID, second.ID)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct role ids, got %q twice", first.ID)
	}
}

func TestAdminCreateRoleDuplicateNameConflicts(t *testing.T) {
	admin, _, _ := newTestAdmin(t)
	ctx := context.Background()
	if _, err := admin.CreateRole(ctx, "auditor", "", nil); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := admin.CreateRole(ctx, "auditor", "other", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdminAddPermissionIsIdempotent(t *testing.T) {
	admin, _, _ := newTestAdmin(t)
	ctx := context.Background()
	role, err := admin.CreateRole(ctx, "auditor", "", nil)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := admin.AddPermission(ctx, role.ID, "read:users"); err != nil {
		t.Fatalf("AddPermission: %v", err)
	}
	updated, err := admin.AddPermission(ctx, role.ID, "read:users")
	if err != nil {
		t.Fatalf("AddPermission (repeat): %v", err)
	}
	if len(updated.Permissions) != 1 {
		t.Fatalf("expected a single permission, got %v", updated.Permissions)
	}
}

func TestAdminAssignRoleValidatesBothSides(t *testing.T) {
	admin, directory, roles := newTestAdmin(t)
	ctx := context.Background()
	user := seedUser(t, directory, "a@x.com")
	role, err := admin.CreateRole(ctx, "auditor", "", []string{"read:reports"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := admin.AssignRole(ctx, user.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
	if err := admin.AssignRole(ctx, "missing", role.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if err := admin.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	held, err := roles.RolesForUser(ctx, user.ID)
	if err != nil || len(held) != 1 {
		t.Fatalf("expected one held role, got %v (%v)", held, err)
	}
}

func TestAdminSetPermissionsReplacesSet(t *testing.T) {
	admin, _, _ := newTestAdmin(t)
	ctx := context.Background()
	role, err := admin.CreateRole(ctx, "auditor", "", []string{"read:users"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	updated, err := admin.SetPermissions(ctx, role.ID, []string{"write:users", "write:users"})
	if err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	if len(updated.Permissions) != 1 || updated.Permissions[0] != "write:users" {
		t.Fatalf("unexpected permissions: %v", updated.Permissions)
	}
}
