// Package memstore is an in-memory credential store for tests. It enforces
// the same uniqueness and referential rules as the PostgreSQL schema and
// exposes one view per consuming package.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/internal/users"
)

type pair [2]string

// Store holds users, roles, permissions and both join tables.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	users     map[string]*auth.User
	roles     map[string]*rbac.Role
	perms     map[string]*rbac.Permission
	rolePerms map[pair]struct{}
	userRoles map[pair]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:       func() time.Time { return time.Now().UTC() },
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*rbac.Role),
		perms:     make(map[string]*rbac.Permission),
		rolePerms: make(map[pair]struct{}),
		userRoles: make(map[pair]struct{}),
	}
}

// Auth returns the auth.Repository view.
func (s *Store) Auth() *AuthRepo { return &AuthRepo{s: s} }

// RBAC returns the rbac.Repository view.
func (s *Store) RBAC() *RBACRepo { return &RBACRepo{s: s} }

// Users returns the users.RepositoryPort view.
func (s *Store) Users() *UsersRepo { return &UsersRepo{s: s} }

// MustRole creates a role or panics. Test setup only.
func (s *Store) MustRole(name string) rbac.Role {
	role, err := s.RBAC().CreateRole(context.Background(), rbac.RoleInput{Name: name, Description: name + " role"})
	if err != nil {
		panic(err)
	}
	return role
}

// MustPermission creates a permission or panics. Test setup only.
func (s *Store) MustPermission(name string) rbac.Permission {
	perm, err := s.RBAC().CreatePermission(context.Background(), rbac.PermissionInput{Name: name, Description: name})
	if err != nil {
		panic(err)
	}
	return perm
}

// MustUser inserts u holding roleID or panics. Test setup only.
func (s *Store) MustUser(u auth.User, roleID string) auth.User {
	created, err := s.Auth().CreateUser(context.Background(), auth.CreateUserParams{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		RoleID:       roleID,
	})
	if err != nil {
		panic(err)
	}
	return *created
}

func (s *Store) userByEmail(email string) *auth.User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *Store) userByUsername(username string) *auth.User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (s *Store) rolesOf(userID string) []rbac.Role {
	out := []rbac.Role{}
	for key := range s.userRoles {
		if key[0] == userID {
			out = append(out, *s.roles[key[1]])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func roleRefs(roles []rbac.Role) []auth.RoleRef {
	refs := make([]auth.RoleRef, 0, len(roles))
	for _, r := range roles {
		refs = append(refs, auth.RoleRef{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return refs
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

// AuthRepo implements auth.Repository.
type AuthRepo struct{ s *Store }

func (r *AuthRepo) FindUserByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u := r.s.userByEmail(email); u != nil {
		return copyUser(u), nil
	}
	return nil, shared.NotFound("user")
}

func (r *AuthRepo) FindUserByID(_ context.Context, id string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, shared.NotFound("user")
}

func (r *AuthRepo) FindUserByUsername(_ context.Context, username string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u := r.s.userByUsername(username); u != nil {
		return copyUser(u), nil
	}
	return nil, shared.NotFound("user")
}

func (r *AuthRepo) CreateUser(_ context.Context, p auth.CreateUserParams) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userByEmail(p.Email) != nil {
		return nil, shared.Conflict("user", "email")
	}
	if r.s.userByUsername(p.Username) != nil {
		return nil, shared.Conflict("user", "username")
	}
	if _, ok := r.s.roles[p.RoleID]; !ok {
		return nil, shared.NotFound("role")
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.s.now()
	u := &auth.User{
		ID:           id,
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		IsActive:     p.IsActive,
		Phone:        p.Phone,
		Location:     p.Location,
		DepartmentID: p.DepartmentID,
		CreatedBy:    p.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users[id] = u
	r.s.userRoles[pair{id, p.RoleID}] = struct{}{}
	return copyUser(u), nil
}

func (r *AuthRepo) UpdateUserPasswordHash(_ context.Context, userID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return shared.NotFound("user")
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.s.now()
	return nil
}

func (r *AuthRepo) FindRoleByName(_ context.Context, name string) (*auth.RoleRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return &auth.RoleRef{ID: role.ID, Name: role.Name, Description: role.Description}, nil
		}
	}
	return nil, shared.NotFound("role")
}

func (r *AuthRepo) FindRoleByID(_ context.Context, id string) (*auth.RoleRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if role, ok := r.s.roles[id]; ok {
		return &auth.RoleRef{ID: role.ID, Name: role.Name, Description: role.Description}, nil
	}
	return nil, shared.NotFound("role")
}

func (r *AuthRepo) ListUserRoles(_ context.Context, userID string) ([]auth.RoleRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return roleRefs(r.s.rolesOf(userID)), nil
}

// RBACRepo implements rbac.Repository.
type RBACRepo struct{ s *Store }

func (r *RBACRepo) ListRoles(_ context.Context) ([]rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]rbac.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *RBACRepo) GetRole(_ context.Context, id string) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if role, ok := r.s.roles[id]; ok {
		return *role, nil
	}
	return rbac.Role{}, shared.NotFound("role")
}

func (r *RBACRepo) GetRoleByName(_ context.Context, name string) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return *role, nil
		}
	}
	return rbac.Role{}, shared.NotFound("role")
}

func (r *RBACRepo) CreateRole(_ context.Context, in rbac.RoleInput) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == in.Name {
			return rbac.Role{}, shared.Conflict("role", "name")
		}
	}
	now := r.s.now()
	role := &rbac.Role{ID: uuid.NewString(), Name: in.Name, Description: in.Description, CreatedAt: now, UpdatedAt: now}
	r.s.roles[role.ID] = role
	return *role, nil
}

func (r *RBACRepo) UpdateRole(_ context.Context, id string, in rbac.RoleInput) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return rbac.Role{}, shared.NotFound("role")
	}
	for _, other := range r.s.roles {
		if other.ID != id && other.Name == in.Name {
			return rbac.Role{}, shared.Conflict("role", "name")
		}
	}
	role.Name = in.Name
	role.Description = in.Description
	role.UpdatedAt = r.s.now()
	return *role, nil
}

func (r *RBACRepo) DeleteRole(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return shared.NotFound("role")
	}
	for key := range r.s.userRoles {
		if key[1] == id {
			return shared.InUse("role")
		}
	}
	for key := range r.s.rolePerms {
		if key[0] == id {
			return shared.InUse("role")
		}
	}
	delete(r.s.roles, id)
	return nil
}

func (r *RBACRepo) ListPermissions(_ context.Context) ([]rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]rbac.Permission, 0, len(r.s.perms))
	for _, p := range r.s.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *RBACRepo) GetPermission(_ context.Context, id string) (rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.perms[id]; ok {
		return *p, nil
	}
	return rbac.Permission{}, shared.NotFound("permission")
}

func (r *RBACRepo) GetPermissionByName(_ context.Context, name string) (rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.perms {
		if p.Name == name {
			return *p, nil
		}
	}
	return rbac.Permission{}, shared.NotFound("permission")
}

func (r *RBACRepo) CreatePermission(_ context.Context, in rbac.PermissionInput) (rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.perms {
		if p.Name == in.Name {
			return rbac.Permission{}, shared.Conflict("permission", "name")
		}
	}
	p := &rbac.Permission{ID: uuid.NewString(), Name: in.Name, Description: in.Description, CreatedAt: r.s.now()}
	r.s.perms[p.ID] = p
	return *p, nil
}

func (r *RBACRepo) DeletePermission(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.perms[id]; !ok {
		return shared.NotFound("permission")
	}
	for key := range r.s.rolePerms {
		if key[1] == id {
			return shared.InUse("permission")
		}
	}
	delete(r.s.perms, id)
	return nil
}

func (r *RBACRepo) ListRolePermissions(_ context.Context, roleID string) ([]rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []rbac.Permission{}
	for key := range r.s.rolePerms {
		if key[0] == roleID {
			out = append(out, *r.s.perms[key[1]])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *RBACRepo) GrantPermission(_ context.Context, roleID, permissionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[roleID]; !ok {
		return shared.NotFound("role")
	}
	if _, ok := r.s.perms[permissionID]; !ok {
		return shared.NotFound("permission")
	}
	key := pair{roleID, permissionID}
	if _, ok := r.s.rolePerms[key]; ok {
		return shared.Conflict("role permission", "permission")
	}
	r.s.rolePerms[key] = struct{}{}
	return nil
}

func (r *RBACRepo) RevokePermission(_ context.Context, roleID, permissionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pair{roleID, permissionID}
	if _, ok := r.s.rolePerms[key]; !ok {
		return shared.NotFound("role permission")
	}
	delete(r.s.rolePerms, key)
	return nil
}

func (r *RBACRepo) UserExists(_ context.Context, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.users[userID]
	return ok, nil
}

func (r *RBACRepo) ListUserRoles(_ context.Context, userID string) ([]rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.rolesOf(userID), nil
}

func (r *RBACRepo) AssignRole(_ context.Context, userID, roleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return shared.NotFound("user")
	}
	if _, ok := r.s.roles[roleID]; !ok {
		return shared.NotFound("role")
	}
	key := pair{userID, roleID}
	if _, ok := r.s.userRoles[key]; ok {
		return shared.Conflict("user role", "role")
	}
	r.s.userRoles[key] = struct{}{}
	return nil
}

func (r *RBACRepo) UnassignRole(_ context.Context, userID, roleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pair{userID, roleID}
	if _, ok := r.s.userRoles[key]; !ok {
		return shared.NotFound("user role")
	}
	delete(r.s.userRoles, key)
	return nil
}

// UsersRepo implements users.RepositoryPort.
type UsersRepo struct{ s *Store }

func (r *UsersRepo) ListUsers(_ context.Context, f users.ListFilter) ([]auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []auth.User{}
	for _, u := range r.s.users {
		if search != "" && !strings.Contains(strings.ToLower(u.Username), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if f.Active != nil && u.IsActive != *f.Active {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if f.Offset >= len(out) {
		return []auth.User{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *UsersRepo) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return r.s.Auth().FindUserByID(ctx, id)
}

func (r *UsersRepo) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.s.Auth().FindUserByEmail(ctx, email)
}

func (r *UsersRepo) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.s.Auth().FindUserByUsername(ctx, username)
}

func (r *UsersRepo) UpdateUser(_ context.Context, id string, in users.UpdateInput) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, shared.NotFound("user")
	}
	if in.Email != nil {
		if other := r.s.userByEmail(*in.Email); other != nil && other.ID != id {
			return nil, shared.Conflict("user", "email")
		}
	}
	if in.Username != nil {
		if other := r.s.userByUsername(*in.Username); other != nil && other.ID != id {
			return nil, shared.Conflict("user", "username")
		}
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if in.Location != nil {
		u.Location = *in.Location
	}
	if in.DepartmentID != nil {
		u.DepartmentID = *in.DepartmentID
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	u.UpdatedAt = r.s.now()
	return copyUser(u), nil
}

func (r *UsersRepo) SetActive(_ context.Context, id string, active bool) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, shared.NotFound("user")
	}
	u.IsActive = active
	u.UpdatedAt = r.s.now()
	return copyUser(u), nil
}

func (r *UsersRepo) ListRolesByUser(_ context.Context, ids []string) (map[string][]auth.RoleRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string][]auth.RoleRef, len(ids))
	for _, id := range ids {
		out[id] = roleRefs(r.s.rolesOf(id))
	}
	return out, nil
}

var (
	_ auth.Repository      = (*AuthRepo)(nil)
	_ rbac.Repository      = (*RBACRepo)(nil)
	_ users.RepositoryPort = (*UsersRepo)(nil)
)
