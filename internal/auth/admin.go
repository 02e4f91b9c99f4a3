package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AdminService carries the back-office user and role management operations.
// It validates and normalizes input, delegates persistence to the
// directories, and re-hashes secrets on password change.
type AdminService struct {
	directory Directory
	roles     RoleDirectory
	hasher    Hasher
	audit     AuditFunc
}

// NewAdminService constructs the management service.
func NewAdminService(directory Directory, roles RoleDirectory, hasher Hasher, audit AuditFunc) (*AdminService, error) {
	if directory == nil || roles == nil {
		return nil, errors.New("user and role directories are required")
	}
	return &AdminService{directory: directory, roles: roles, hasher: hasher, audit: audit}, nil
}

// ListUsers returns all principals in their public view.
func (s *AdminService) ListUsers(ctx context.Context) ([]PublicUser, error) {
	users, err := s.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// GetUser returns a single principal by id.
func (s *AdminService) GetUser(ctx context.Context, id string) (PublicUser, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

// CreateUser provisions a principal directly, bypassing self-registration.
// Unlike Register it honors the requested role.
func (s *AdminService) CreateUser(ctx context.Context, reg Registration) (PublicUser, error) {
	email := strings.TrimSpace(reg.Email)
	if email == "" || !strings.Contains(email, "@") {
		return PublicUser{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(reg.Password) < minPasswordLength {
		return PublicUser{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role := reg.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return PublicUser{}, fmt.Errorf("%w: unknown role %s", ErrInvalidInput, role)
	}
	if _, err := s.directory.FindByEmail(ctx, email); err == nil {
		return PublicUser{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return PublicUser{}, err
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return PublicUser{}, err
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Role:         role,
		Active:       true,
	}
	created, err := s.directory.Create(ctx, user)
	if err != nil {
		return PublicUser{}, err
	}
	s.emit("admin.user.create", map[string]any{"user_id": created.ID, "role": created.Role})
	return created.Public(), nil
}

// UpdateUser applies a partial update. Changing the email re-checks
// uniqueness; changing the password re-hashes it.
func (s *AdminService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (PublicUser, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return PublicUser{}, err
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return PublicUser{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		if email != user.Email {
			if _, err := s.directory.FindByEmail(ctx, email); err == nil {
				return PublicUser{}, fmt.Errorf("%w: email already registered", ErrConflict)
			} else if !errors.Is(err, ErrNotFound) {
				return PublicUser{}, err
			}
			user.Email = email
		}
	}
	if upd.Password != nil {
		if len(*upd.Password) < minPasswordLength {
			return PublicUser{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return PublicUser{}, err
		}
		user.PasswordHash = hash
	}
	if upd.FirstName != nil {
		user.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		user.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return PublicUser{}, fmt.Errorf("%w: unknown role %s", ErrInvalidInput, *upd.Role)
		}
		user.Role = *upd.Role
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}

	saved, err := s.directory.Save(ctx, user)
	if err != nil {
		return PublicUser{}, err
	}
	s.emit("admin.user.update", map[string]any{"user_id": saved.ID})
	return saved.Public(), nil
}

// SetUserActive toggles the active flag.
func (s *AdminService) SetUserActive(ctx context.Context, id string, active bool) (PublicUser, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return PublicUser{}, err
	}
	user.Active = active
	saved, err := s.directory.Save(ctx, user)
	if err != nil {
		return PublicUser{}, err
	}
	s.emit("admin.user.active", map[string]any{"user_id": id, "active": active})
	return saved.Public(), nil
}

// DeleteUser removes the principal.
func (s *AdminService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.findUser(ctx, id); err != nil {
		return err
	}
	if err := s.directory.Delete(ctx, id); err != nil {
		return err
	}
	s.emit("admin.user.delete", map[string]any{"user_id": id})
	return nil
}

// AssignRole grants the user an additional role.
func (s *AdminService) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.roles.FindByID(ctx, strings.TrimSpace(roleID)); err != nil {
		return err
	}
	if err := s.roles.Assign(ctx, userID, roleID); err != nil {
		return err
	}
	s.emit("admin.user.role.assign", map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

// RemoveRole revokes a previously assigned role.
func (s *AdminService) RemoveRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.roles.FindByID(ctx, strings.TrimSpace(roleID)); err != nil {
		return err
	}
	if err := s.roles.Unassign(ctx, userID, roleID); err != nil {
		return err
	}
	s.emit("admin.user.role.remove", map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

// CreateRole creates a role with a unique name and a deduplicated permission
// set.
func (s *AdminService) CreateRole(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := s.roles.FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: role name already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: dedupePermissions(permissions),
	}
	created, err := s.roles.Create(ctx, role)
	if err != nil {
		return nil, err
	}
	s.emit("admin.role.create", map[string]any{"role_id": created.ID, "name": created.Name})
	return created, nil
}

// ListRoles returns all roles.
func (s *AdminService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.roles.List(ctx)
}

// GetRole returns a role by id.
func (s *AdminService) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.findRole(ctx, id)
}

// UpdateRole applies a partial update, re-checking name uniqueness.
func (s *AdminService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	role, err := s.findRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if name != role.Name {
			if _, err := s.roles.FindByName(ctx, name); err == nil {
				return nil, fmt.Errorf("%w: role name already exists", ErrConflict)
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			role.Name = name
		}
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	saved, err := s.roles.Save(ctx, role)
	if err != nil {
		return nil, err
	}
	s.emit("admin.role.update", map[string]any{"role_id": saved.ID})
	return saved, nil
}

// DeleteRole removes the role.
func (s *AdminService) DeleteRole(ctx context.Context, id string) error {
	if _, err := s.findRole(ctx, id); err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	s.emit("admin.role.delete", map[string]any{"role_id": id})
	return nil
}

// AddPermission grants the role a permission. Adding one it already holds is
// a no-op.
func (s *AdminService) AddPermission(ctx context.Context, roleID, permission string) (*Role, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return nil, fmt.Errorf("%w: permission is required", ErrInvalidInput)
	}
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	for _, p := range role.Permissions {
		if p == permission {
			return role, nil
		}
	}
	role.Permissions = append(role.Permissions, permission)
	return s.roles.Save(ctx, role)
}

// RemovePermission revokes a permission from the role.
func (s *AdminService) RemovePermission(ctx context.Context, roleID, permission string) (*Role, error) {
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	kept := role.Permissions[:0]
	for _, p := range role.Permissions {
		if p != permission {
			kept = append(kept, p)
		}
	}
	role.Permissions = kept
	return s.roles.Save(ctx, role)
}

// SetPermissions replaces the role's permission set.
func (s *AdminService) SetPermissions(ctx context.Context, roleID string, permissions []string) (*Role, error) {
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	role.Permissions = dedupePermissions(permissions)
	saved, err := s.roles.Save(ctx, role)
	if err != nil {
		return nil, err
	}
	s.emit("admin.role.permissions.set", map[string]any{"role_id": roleID, "count": len(saved.Permissions)})
	return saved, nil
}

func (s *AdminService) findUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.directory.FindByID(ctx, id)
}

func (s *AdminService) findRole(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.roles.FindByID(ctx, id)
}

func (s *AdminService) emit(event string, fields map[string]any) {
	if s.audit != nil {
		s.audit(event, fields)
	}
}

func dedupePermissions(perms []string) []string {
	if len(perms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(perms))
	var out []string
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
