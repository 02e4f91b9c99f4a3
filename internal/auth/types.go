package auth

import "time"

// RoleKind is the closed enumeration of primary roles.
type RoleKind string

const (
	RoleUser  RoleKind = "user"
	RoleAdmin RoleKind = "admin"
)

// Valid reports whether the value is one of the known primary roles.
func (r RoleKind) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a principal subject to authentication and authorization.
// PasswordHash is never serialized outward; callers expose PublicUser instead.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         RoleKind
	Active       bool
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is an independently addressable authorization unit. Permissions is a
// deduplicated set of permission keys contributed to every check for users
// holding the role.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PublicUser is the reduced view returned to callers. It carries no secret
// material.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      RoleKind  `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public returns the outward-facing view of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// PermissionSet returns the union of permission keys across all held roles.
func (u *User) PermissionSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range u.Roles {
		for _, perm := range role.Permissions {
			set[perm] = struct{}{}
		}
	}
	return set
}

// Registration is the input accepted when creating a principal.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      RoleKind
}

// UserUpdate describes a partial update to a user record. Nil fields are left
// untouched.
type UserUpdate struct {
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
	Role      *RoleKind
	Active    *bool
}

// RoleUpdate describes a partial update to a role record.
type RoleUpdate struct {
	Name        *string
	Description *string
}
