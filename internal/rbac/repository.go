package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamdesk/identity/internal/platform/db"
	"github.com/teamdesk/identity/internal/shared"
)

// Repository defines persistence for roles, permissions and both join
// tables. Single-row lookups return a shared.ErrNotFound kind on miss.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, in RoleInput) (Role, error)
	UpdateRole(ctx context.Context, id string, in RoleInput) (Role, error)
	DeleteRole(ctx context.Context, id string) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	CreatePermission(ctx context.Context, in PermissionInput) (Permission, error)
	DeletePermission(ctx context.Context, id string) error

	ListRolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error

	UserExists(ctx context.Context, userID string) (bool, error)
	ListUserRoles(ctx context.Context, userID string) ([]Role, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool}
}

const (
	roleColumns       = `id::text, name, COALESCE(description, ''), created_at, updated_at`
	permissionColumns = `id::text, name, COALESCE(description, ''), created_at`
)

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if db.IsNoRows(err) {
		return Role{}, shared.NotFound("role")
	}
	return role, err
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt)
	if db.IsNoRows(err) {
		return Permission{}, shared.NotFound("permission")
	}
	return perm, err
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	perms := []Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	return collectRoles(rows)
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id string) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role by its unique name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING `+roleColumns,
		in.Name, in.Description))
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", mapWriteError(err))
	}
	return role, nil
}

// UpdateRole updates name and description of an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, id string, in RoleInput) (Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 RETURNING `+roleColumns, id, in.Name, in.Description))
	if err != nil {
		return Role{}, fmt.Errorf("rbac: update role: %w", mapWriteError(err))
	}
	return role, nil
}

// DeleteRole removes an unreferenced role. Foreign keys reject deletion of a
// role that is still assigned or granted.
func (r *PGRepository) DeleteRole(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if _, ok := db.ForeignKeyViolation(err); ok {
			return shared.InUse("role")
		}
		return fmt.Errorf("rbac: delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("role")
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	return collectPermissions(rows)
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id string) (Permission, error) {
	return scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
}

// GetPermissionByName fetches a permission by its unique name.
func (r *PGRepository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	return scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = $1`, name))
}

// CreatePermission inserts a new permission.
func (r *PGRepository) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	perm, err := scanPermission(r.db.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2) RETURNING `+permissionColumns,
		in.Name, in.Description))
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: create permission: %w", mapWriteError(err))
	}
	return perm, nil
}

// DeletePermission removes an ungranted permission.
func (r *PGRepository) DeletePermission(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		if _, ok := db.ForeignKeyViolation(err); ok {
			return shared.InUse("permission")
		}
		return fmt.Errorf("rbac: delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("permission")
	}
	return nil
}

// ListRolePermissions returns the permissions granted to a role.
func (r *PGRepository) ListRolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id::text, p.name, COALESCE(p.description, ''), p.created_at
		FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list role permissions: %w", err)
	}
	return collectPermissions(rows)
}

// GrantPermission inserts a role_permissions row. A duplicate pair is a
// conflict.
func (r *PGRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	if _, err := r.db.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permissionID); err != nil {
		return fmt.Errorf("rbac: grant permission: %w", mapWriteError(err))
	}
	return nil
}

// RevokePermission deletes a role_permissions row.
func (r *PGRepository) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("rbac: revoke permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("role permission")
	}
	return nil
}

// UserExists reports whether a user row exists.
func (r *PGRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("rbac: user exists: %w", err)
	}
	return exists, nil
}

// ListUserRoles returns the roles a user holds.
func (r *PGRepository) ListUserRoles(ctx context.Context, userID string) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT r.id::text, r.name, COALESCE(r.description, ''), r.created_at, r.updated_at
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list user roles: %w", err)
	}
	return collectRoles(rows)
}

// AssignRole inserts a user_roles row. A duplicate pair is a conflict.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := r.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID); err != nil {
		return fmt.Errorf("rbac: assign role: %w", mapWriteError(err))
	}
	return nil
}

// UnassignRole deletes a user_roles row.
func (r *PGRepository) UnassignRole(ctx context.Context, userID, roleID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("rbac: unassign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user role")
	}
	return nil
}

func mapWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "roles_name_key":
			return shared.Conflict("role", "name")
		case "permissions_name_key":
			return shared.Conflict("permission", "name")
		case "role_permissions_pkey":
			return shared.Conflict("role permission", "permission")
		case "user_roles_pkey":
			return shared.Conflict("user role", "role")
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
