package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const minPasswordLength = 8

// AuthResult is returned on successful login or registration.
type AuthResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      PublicUser `json:"user"`
}

// TokenValidation is the tagged result of ValidateToken. It never carries an
// error: every failure path resolves to Valid=false.
type TokenValidation struct {
	Valid  bool   `json:"isValid"`
	UserID string `json:"userId,omitempty"`
}

// Service orchestrates the credential lifecycle: login, registration, token
// validation and invalidation.
type Service struct {
	directory Directory
	roles     RoleDirectory
	codec     *Codec
	registry  *Registry
	hasher    Hasher
	logger    *slog.Logger
	audit     AuditFunc
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger used for internal failures.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceAudit installs the audit hook for credential events.
func WithServiceAudit(fn AuditFunc) ServiceOption {
	return func(s *Service) { s.audit = fn }
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the credential service.
func NewService(directory Directory, roles RoleDirectory, codec *Codec, registry *Registry, hasher Hasher, opts ...ServiceOption) (*Service, error) {
	if directory == nil {
		return nil, errors.New("user directory is required")
	}
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	if registry == nil {
		return nil, errors.New("revocation registry is required")
	}
	s := &Service{
		directory: directory,
		roles:     roles,
		codec:     codec,
		registry:  registry,
		hasher:    hasher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates the email/password pair and issues a token. Every
// failure — unknown email, wrong password, inactive account, or an internal
// error — surfaces as ErrUnauthorized so callers cannot distinguish the
// reasons and enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("login lookup failed", slog.String("error", err.Error()))
		}
		return AuthResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return AuthResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if !user.Active {
		return AuthResult{}, fmt.Errorf("%w: account is not active", ErrUnauthorized)
	}

	result, err := s.issue(user)
	if err != nil {
		s.logger.Error("token issuance failed", slog.String("error", err.Error()))
		return AuthResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	s.emit("auth.login", map[string]any{"subject": user.ID, "email": user.Email})
	return result, nil
}

// Register creates a new principal and issues a token for it. A duplicate
// email fails with ErrConflict. The default primary role is RoleUser unless
// the caller explicitly elevates.
func (s *Service) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	email := strings.TrimSpace(reg.Email)
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(reg.Password) < minPasswordLength {
		return AuthResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	if _, err := s.directory.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	role := reg.Role
	if !role.Valid() {
		role = RoleUser
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.directory.Create(ctx, user)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return AuthResult{}, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return AuthResult{}, err
	}

	result, err := s.issue(created)
	if err != nil {
		return AuthResult{}, err
	}
	s.emit("auth.register", map[string]any{"subject": created.ID, "email": created.Email})
	return result, nil
}

// ValidateToken reports whether the token is currently acceptable. It is a
// total function: it sits on every protected request and never returns an
// error. A token is valid iff it is non-empty, not revoked, well-formed,
// cryptographically verifiable, unexpired, and its subject resolves to an
// active principal.
func (s *Service) ValidateToken(ctx context.Context, token string) TokenValidation {
	if token == "" {
		return TokenValidation{}
	}
	if s.registry.IsInvalidated(token) {
		return TokenValidation{}
	}
	claims, err := s.codec.Verify(token)
	if err != nil {
		return TokenValidation{}
	}
	user, err := s.directory.FindByID(ctx, claims.Subject)
	if err != nil || !user.Active {
		return TokenValidation{}
	}
	return TokenValidation{Valid: true, UserID: user.ID}
}

// InvalidateToken records the token in the revocation registry. It mirrors
// the registry's contract: false only for an empty token, true otherwise,
// idempotently.
func (s *Service) InvalidateToken(token string) bool {
	return s.registry.Invalidate(token)
}

// Authenticate resolves a bearer token to a full principal with held roles
// loaded, for use by the authorization guard. Fails with ErrInvalidToken for
// a revoked, malformed, or expired token and ErrUnauthorized for an inactive
// or missing principal.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" || s.registry.IsInvalidated(token) {
		return nil, ErrInvalidToken
	}
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.directory.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: account is not active", ErrUnauthorized)
	}
	if s.roles != nil {
		held, err := s.roles.RolesForUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		user.Roles = held
	}
	return user, nil
}

// Profile returns the public view of the principal.
func (s *Service) Profile(ctx context.Context, userID string) (PublicUser, error) {
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *Service) issue(user *User) (AuthResult, error) {
	token, expiresAt, err := s.codec.Sign(user, s.codec.TTL())
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

func (s *Service) emit(event string, fields map[string]any) {
	if s.audit != nil {
		s.audit(event, fields)
	}
}
