package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"authdesk.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// UserDirectory implements auth.Directory on top of the users table.
type UserDirectory struct {
	db *sql.DB
}

// RoleDirectory implements auth.RoleDirectory on top of the roles and
// user_roles tables. Permissions are stored as a jsonb array.
type RoleDirectory struct {
	db *sql.DB
}

var (
	_ auth.Directory     = (*UserDirectory)(nil)
	_ auth.RoleDirectory = (*RoleDirectory)(nil)
)

func (s *Store) Users() *UserDirectory { return &UserDirectory{db: s.db} }

func (s *Store) Roles() *RoleDirectory { return &RoleDirectory{db: s.db} }

const userColumns = `id, email, password_hash, first_name, last_name, role, active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		user  auth.User
		first sql.NullString
		last  sql.NullString
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &first, &last, &user.Role, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if first.Valid {
		user.FirstName = first.String
	}
	if last.Valid {
		user.LastName = last.String
	}
	return &user, nil
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := d.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = $1
	`, email)
	return scanUser(row)
}

func (d *UserDirectory) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := d.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id)
	return scanUser(row)
}

func (d *UserDirectory) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := d.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, role, active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+userColumns+`
	`, user.ID, user.Email, user.PasswordHash, nullIfEmpty(user.FirstName), nullIfEmpty(user.LastName), user.Role, user.Active)
	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (d *UserDirectory) Save(ctx context.Context, user *auth.User) (*auth.User, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := d.db.QueryRowContext(ctx, `
		update users
		set email = $2, password_hash = $3, first_name = $4, last_name = $5, role = $6, active = $7, updated_at = now()
		where id = $1
		returning `+userColumns+`
	`, user.ID, user.Email, user.PasswordHash, nullIfEmpty(user.FirstName), nullIfEmpty(user.LastName), user.Role, user.Active)
	saved, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	return saved, nil
}

func (d *UserDirectory) List(ctx context.Context) ([]*auth.User, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := d.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (d *UserDirectory) Delete(ctx context.Context, id string) error {
	if d.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := d.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

const roleColumns = `id, name, description, permissions, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var (
		role     auth.Role
		desc     sql.NullString
		rawPerms []byte
	)
	err := row.Scan(&role.ID, &role.Name, &desc, &rawPerms, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}

func marshalPermissions(perms []string) ([]byte, error) {
	if perms == nil {
		perms = []string{}
	}
	return json.Marshal(perms)
}

func (d *RoleDirectory) Create(ctx context.Context, role *auth.Role) (*auth.Role, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	perms, err := marshalPermissions(role.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	row := d.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions)
		values ($1, $2, $3, $4)
		returning `+roleColumns+`
	`, role.ID, role.Name, nullIfEmpty(role.Description), perms)
	created, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (d *RoleDirectory) FindByID(ctx context.Context, id string) (*auth.Role, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := d.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1
	`, id)
	return scanRole(row)
}

func (d *RoleDirectory) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := d.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where name = $1
	`, strings.TrimSpace(name))
	return scanRole(row)
}

func (d *RoleDirectory) List(ctx context.Context) ([]*auth.Role, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := d.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (d *RoleDirectory) Save(ctx context.Context, role *auth.Role) (*auth.Role, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	perms, err := marshalPermissions(role.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	row := d.db.QueryRowContext(ctx, `
		update roles
		set name = $2, description = $3, permissions = $4, updated_at = now()
		where id = $1
		returning `+roleColumns+`
	`, role.ID, role.Name, nullIfEmpty(role.Description), perms)
	saved, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	return saved, nil
}

func (d *RoleDirectory) Delete(ctx context.Context, id string) error {
	if d.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := d.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (d *RoleDirectory) Assign(ctx context.Context, userID, roleID string) error {
	if d.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := d.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (d *RoleDirectory) Unassign(ctx context.Context, userID, roleID string) error {
	if d.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := d.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	return err
}

func (d *RoleDirectory) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	if d.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := d.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.permissions, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
