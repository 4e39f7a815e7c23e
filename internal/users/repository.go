package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/platform/db"
	"github.com/teamdesk/identity/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
	auth *auth.PGRepository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, auth: auth.NewRepository(pool)}
}

// ListUsers returns users matching filter ordered by username.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]auth.User, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	query := `SELECT ` + auth.UserColumns + ` FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY username LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	users := []auth.User{}
	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return r.auth.FindUserByID(ctx, id)
}

// FindUserByEmail fetches a user by case-folded email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.auth.FindUserByEmail(ctx, email)
}

// FindUserByUsername fetches a user by username.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.auth.FindUserByUsername(ctx, username)
}

// UpdateUser applies the non-nil fields of in.
func (r *Repository) UpdateUser(ctx context.Context, id string, in UpdateInput) (*auth.User, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if in.Email != nil {
		add("email", *in.Email)
	}
	if in.Username != nil {
		add("username", *in.Username)
	}
	if in.Phone != nil {
		add("phone", nullable(*in.Phone))
	}
	if in.Location != nil {
		add("location", nullable(*in.Location))
	}
	if in.DepartmentID != nil {
		add("department_id", nullable(*in.DepartmentID))
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}
	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + auth.UserColumns
	user, err := auth.ScanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("users: update: %w", mapWriteError(err))
	}
	return user, nil
}

// SetActive flips the activation flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) (*auth.User, error) {
	user, err := auth.ScanUser(r.pool.QueryRow(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1 RETURNING `+auth.UserColumns, id, active))
	if err != nil {
		return nil, fmt.Errorf("users: set active: %w", err)
	}
	return user, nil
}

// ListRolesByUser returns the roles of every user in ids keyed by user id.
func (r *Repository) ListRolesByUser(ctx context.Context, ids []string) (map[string][]auth.RoleRef, error) {
	out := make(map[string][]auth.RoleRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT ur.user_id::text, r.id::text, r.name, COALESCE(r.description, '')
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id::text = ANY($1) ORDER BY r.name`, ids)
	if err != nil {
		return nil, fmt.Errorf("users: list roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var role auth.RoleRef
		if err := rows.Scan(&userID, &role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("users: scan role: %w", err)
		}
		out[userID] = append(out[userID], role)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "users_email_key":
			return shared.Conflict("user", "email")
		case "users_username_key":
			return shared.Conflict("user", "username")
		}
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
