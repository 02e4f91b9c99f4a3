package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubDirectory is an in-memory Directory for exercising the credential
// service without a database.
type stubDirectory struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]*User
	findErr error
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	if u, ok := d.byEmail[email]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (d *stubDirectory) FindByID(_ context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (d *stubDirectory) Create(_ context.Context, user *User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[user.Email]; ok {
		return nil, ErrConflict
	}
	clone := *user
	d.byID[user.ID] = &clone
	d.byEmail[user.Email] = &clone
	return user, nil
}

func (d *stubDirectory) Save(_ context.Context, user *User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *user
	d.byID[user.ID] = &clone
	d.byEmail[user.Email] = &clone
	return user, nil
}

func (d *stubDirectory) List(_ context.Context) ([]*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*User, 0, len(d.byID))
	for _, u := range d.byID {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (d *stubDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(d.byEmail, u.Email)
	delete(d.byID, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *stubDirectory, *Registry) {
	t.Helper()
	codec := newTestCodec(t)
	registry := NewRegistry(codec)
	directory := newStubDirectory()
	svc, err := NewService(directory, nil, codec, registry, NewHasher(4))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, directory, registry
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Token == "" {
		t.Fatalf("expected a token on registration")
	}
	if reg.User.Role != RoleUser {
		t.Fatalf("default role should be user, got %s", reg.User.Role)
	}
	if !reg.User.Active {
		t.Fatalf("new accounts must be active")
	}

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	validation := svc.ValidateToken(ctx, res.Token)
	if !validation.Valid {
		t.Fatalf("freshly issued token should validate")
	}
	if validation.UserID != reg.User.ID {
		t.Fatalf("unexpected subject: %s", validation.UserID)
	}
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Login(ctx, "a@x.com", "wrongpw")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLoginUnknownEmailIsUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody@x.com", "pw123456")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLoginInactiveAccountIsUnauthorized(t *testing.T) {
	svc, directory, _ := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	user, _ := directory.FindByID(ctx, reg.User.ID)
	user.Active = false
	if _, err := directory.Save(ctx, user); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err = svc.Login(ctx, "a@x.com", "pw123456")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLoginInternalErrorNormalizesToUnauthorized(t *testing.T) {
	svc, directory, _ := newTestService(t)
	directory.findErr = errors.New("directory is down")
	_, err := svc.Login(context.Background(), "a@x.com", "pw123456")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("internal failures must surface as ErrUnauthorized, got %v", err)
	}
	if strings.Contains(err.Error(), "directory is down") {
		t.Fatalf("internal detail leaked to caller: %v", err)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "otherpw99"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "not-an-email", Password: "pw123456"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestValidateTokenFailureModes(t *testing.T) {
	svc, directory, registry := newTestService(t)
	ctx := context.Background()

	if svc.ValidateToken(ctx, "").Valid {
		t.Fatalf("empty token validated")
	}
	if svc.ValidateToken(ctx, "garbage").Valid {
		t.Fatalf("malformed token validated")
	}

	reg, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Revoked token.
	if !svc.InvalidateToken(reg.Token) {
		t.Fatalf("InvalidateToken failed")
	}
	if !registry.IsInvalidated(reg.Token) {
		t.Fatalf("token not in registry")
	}
	if svc.ValidateToken(ctx, reg.Token).Valid {
		t.Fatalf("revoked token validated")
	}

	// Deactivated subject.
	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	user, _ := directory.FindByID(ctx, reg.User.ID)
	user.Active = false
	if _, err := directory.Save(ctx, user); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if svc.ValidateToken(ctx, res.Token).Valid {
		t.Fatalf("token for inactive principal validated")
	}
}

func TestInvalidateTokenMirrorsRegistryContract(t *testing.T) {
	svc, _, _ := newTestService(t)
	if svc.InvalidateToken("") {
		t.Fatalf("empty token must fail closed")
	}
	if !svc.InvalidateToken("some-opaque-value") {
		t.Fatalf("non-empty token must succeed")
	}
	if !svc.InvalidateToken("some-opaque-value") {
		t.Fatalf("second invalidation must also succeed")
	}
}

func TestAuthenticateLoadsHeldRoles(t *testing.T) {
	codec := newTestCodec(t)
	registry := NewRegistry(codec)
	directory := newStubDirectory()
	roles := newStubRoleDirectory()
	svc, err := NewService(directory, roles, codec, registry, NewHasher(4))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	reg, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	role, err := roles.Create(ctx, &Role{Name: "auditor", Permissions: []string{"read:reports"}})
	if err != nil {
		t.Fatalf("Create role: %v", err)
	}
	if err := roles.Assign(ctx, reg.User.ID, role.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	principal, err := svc.Authenticate(ctx, reg.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, ok := principal.PermissionSet()["read:reports"]; !ok {
		t.Fatalf("held role permissions missing from principal")
	}
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	svc.InvalidateToken(reg.Token)
	if _, err := svc.Authenticate(ctx, reg.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpiryEndToEnd(t *testing.T) {
	now := time.Now().UTC()
	current := now
	codec, err := NewCodec("test-secret", "authdesk",
		WithTokenTTL(time.Minute),
		WithCodecClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	registry := NewRegistry(codec)
	directory := newStubDirectory()
	svc, err := NewService(directory, nil, codec, registry, NewHasher(4))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	reg, err := svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !svc.ValidateToken(ctx, reg.Token).Valid {
		t.Fatalf("token should be valid before expiry")
	}
	current = now.Add(2 * time.Minute)
	if svc.ValidateToken(ctx, reg.Token).Valid {
		t.Fatalf("token should be invalid after expiry")
	}
}
