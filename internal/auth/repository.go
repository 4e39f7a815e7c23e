package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamdesk/identity/internal/platform/db"
	"github.com/teamdesk/identity/internal/shared"
)

// Repository defines the credential store operations used by the auth
// module. Lookups return a shared.ErrNotFound kind when nothing matches.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	UpdateUserPasswordHash(ctx context.Context, userID, hash string) error
	FindRoleByName(ctx context.Context, name string) (*RoleRef, error)
	FindRoleByID(ctx context.Context, id string) (*RoleRef, error)
	ListUserRoles(ctx context.Context, userID string) ([]RoleRef, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UserColumns is the select list ScanUser expects.
const UserColumns = `id::text, username, email, COALESCE(password_hash, ''), is_active,
	COALESCE(phone, ''), COALESCE(location, ''), COALESCE(department_id, ''),
	COALESCE(created_by::text, ''), created_at, updated_at`

// ScanUser scans a row selected with UserColumns. No rows maps to a user
// not-found error.
func ScanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive,
		&u.Phone, &u.Location, &u.DepartmentID, &u.CreatedBy, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail fetches a user by case-folded email.
func (r *PGRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("auth: find user by email: %w", err)
	}
	return user, nil
}

// FindUserByID fetches a user by id.
func (r *PGRepository) FindUserByID(ctx context.Context, id string) (*User, error) {
	user, err := ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("auth: find user by id: %w", err)
	}
	return user, nil
}

// FindUserByUsername fetches a user by exact username.
func (r *PGRepository) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("auth: find user by username: %w", err)
	}
	return user, nil
}

// CreateUser inserts the user and its initial role in one transaction.
// Unique violations are reported as conflicts on the offending field.
func (r *PGRepository) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	var created *User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO users (id, username, email, password_hash, is_active, phone, location, department_id, created_by)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, '')::uuid)
			RETURNING `+UserColumns,
			params.ID, params.Username, params.Email, params.PasswordHash, params.IsActive,
			params.Phone, params.Location, params.DepartmentID, params.CreatedBy)
		user, err := ScanUser(row)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, user.ID, params.RoleID); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: create user: %w", mapUserWriteError(err))
	}
	return created, nil
}

// UpdateUserPasswordHash replaces the stored digest.
func (r *PGRepository) UpdateUserPasswordHash(ctx context.Context, userID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("auth: update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user")
	}
	return nil
}

// roles.description is nullable; role queries read it as ''.
const (
	queryRoleByName = `SELECT id::text, name, COALESCE(description, '') FROM roles WHERE name = $1`
	queryRoleByID   = `SELECT id::text, name, COALESCE(description, '') FROM roles WHERE id = $1`
	queryUserRoles  = `SELECT r.id::text, r.name, COALESCE(r.description, '')
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 ORDER BY r.name`
)

// FindRoleByName fetches a role by its unique name.
func (r *PGRepository) FindRoleByName(ctx context.Context, name string) (*RoleRef, error) {
	return r.findRole(ctx, queryRoleByName, name)
}

// FindRoleByID fetches a role by id.
func (r *PGRepository) FindRoleByID(ctx context.Context, id string) (*RoleRef, error) {
	return r.findRole(ctx, queryRoleByID, id)
}

func (r *PGRepository) findRole(ctx context.Context, query, arg string) (*RoleRef, error) {
	var role RoleRef
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&role.ID, &role.Name, &role.Description); err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("role")
		}
		return nil, fmt.Errorf("auth: find role: %w", err)
	}
	return &role, nil
}

// ListUserRoles returns the roles currently held by a user ordered by name.
func (r *PGRepository) ListUserRoles(ctx context.Context, userID string) ([]RoleRef, error) {
	rows, err := r.pool.Query(ctx, queryUserRoles, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: list user roles: %w", err)
	}
	defer rows.Close()
	roles := []RoleRef{}
	for rows.Next() {
		var role RoleRef
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("auth: scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func mapUserWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "users_email_key":
			return shared.Conflict("user", "email")
		case "users_username_key":
			return shared.Conflict("user", "username")
		}
	}
	if constraint, ok := db.ForeignKeyViolation(err); ok {
		switch constraint {
		case "user_roles_role_id_fkey":
			return shared.NotFound("role")
		case "users_created_by_fkey":
			return shared.Validation("created_by", "created_by does not reference an existing user")
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
