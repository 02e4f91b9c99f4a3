// Package memory provides mutex-guarded in-process implementations of the
// auth directories. The API server falls back to it when no Postgres DSN is
// configured; tests use it directly.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"authdesk.org/internal/auth"
)

// UserDirectory implements auth.Directory in memory. Email uniqueness is
// enforced under the directory mutex, which serializes concurrent creates.
type UserDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*auth.User
	byEmail map[string]string // email -> id
}

// NewUserDirectory constructs an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		byID:    make(map[string]*auth.User),
		byEmail: make(map[string]string),
	}
}

func (d *UserDirectory) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(d.byID[id]), nil
}

func (d *UserDirectory) FindByID(_ context.Context, id string) (*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(user), nil
}

func (d *UserDirectory) Create(_ context.Context, user *auth.User) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[user.Email]; ok {
		return nil, auth.ErrConflict
	}
	stored := cloneUser(user)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	d.byID[stored.ID] = stored
	d.byEmail[stored.Email] = stored.ID
	return cloneUser(stored), nil
}

func (d *UserDirectory) Save(_ context.Context, user *auth.User) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.byID[user.ID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if user.Email != old.Email {
		if _, taken := d.byEmail[user.Email]; taken {
			return nil, auth.ErrConflict
		}
		delete(d.byEmail, old.Email)
	}
	stored := cloneUser(user)
	stored.UpdatedAt = time.Now().UTC()
	d.byID[stored.ID] = stored
	d.byEmail[stored.Email] = stored.ID
	return cloneUser(stored), nil
}

func (d *UserDirectory) List(_ context.Context) ([]*auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*auth.User, 0, len(d.byID))
	for _, user := range d.byID {
		out = append(out, cloneUser(user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *UserDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(d.byEmail, user.Email)
	delete(d.byID, id)
	return nil
}

// RoleDirectory implements auth.RoleDirectory in memory.
type RoleDirectory struct {
	mu          sync.RWMutex
	byID        map[string]*auth.Role
	byName      map[string]string // name -> id
	assignments map[string]map[string]struct{}
}

// NewRoleDirectory constructs an empty role directory.
func NewRoleDirectory() *RoleDirectory {
	return &RoleDirectory{
		byID:        make(map[string]*auth.Role),
		byName:      make(map[string]string),
		assignments: make(map[string]map[string]struct{}),
	}
}

func (d *RoleDirectory) Create(_ context.Context, role *auth.Role) (*auth.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byName[role.Name]; ok {
		return nil, auth.ErrConflict
	}
	stored := cloneRole(role)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.byID[stored.ID] = stored
	d.byName[stored.Name] = stored.ID
	return cloneRole(stored), nil
}

func (d *RoleDirectory) FindByID(_ context.Context, id string) (*auth.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	role, ok := d.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneRole(role), nil
}

func (d *RoleDirectory) FindByName(_ context.Context, name string) (*auth.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneRole(d.byID[id]), nil
}

func (d *RoleDirectory) List(_ context.Context) ([]*auth.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*auth.Role, 0, len(d.byID))
	for _, role := range d.byID {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *RoleDirectory) Save(_ context.Context, role *auth.Role) (*auth.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.byID[role.ID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if role.Name != old.Name {
		if _, taken := d.byName[role.Name]; taken {
			return nil, auth.ErrConflict
		}
		delete(d.byName, old.Name)
	}
	stored := cloneRole(role)
	stored.UpdatedAt = time.Now().UTC()
	d.byID[stored.ID] = stored
	d.byName[stored.Name] = stored.ID
	return cloneRole(stored), nil
}

func (d *RoleDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	role, ok := d.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(d.byName, role.Name)
	delete(d.byID, id)
	for _, roles := range d.assignments {
		delete(roles, id)
	}
	return nil
}

func (d *RoleDirectory) Assign(_ context.Context, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[roleID]; !ok {
		return auth.ErrNotFound
	}
	if d.assignments[userID] == nil {
		d.assignments[userID] = make(map[string]struct{})
	}
	d.assignments[userID][roleID] = struct{}{}
	return nil
}

func (d *RoleDirectory) Unassign(_ context.Context, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.assignments[userID], roleID)
	return nil
}

func (d *RoleDirectory) RolesForUser(_ context.Context, userID string) ([]auth.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []auth.Role
	for roleID := range d.assignments[userID] {
		if role, ok := d.byID[roleID]; ok {
			out = append(out, *cloneRole(role))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneUser(u *auth.User) *auth.User {
	clone := *u
	clone.Roles = append([]auth.Role(nil), u.Roles...)
	return &clone
}

func cloneRole(r *auth.Role) *auth.Role {
	clone := *r
	clone.Permissions = append([]string(nil), r.Permissions...)
	return &clone
}
