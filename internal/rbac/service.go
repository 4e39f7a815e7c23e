package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teamdesk/identity/internal/shared"
)

// Service resolves permissions and administers the role/permission graph.
// Nothing is cached: every decision re-reads the current join tables.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a Service backed by repo.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// HasPermission walks the user's roles and their grants and stops at the
// first permission whose name matches.
func (s *Service) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, nil
	}
	if _, err := shared.ParseID("user", userID); err != nil {
		return false, nil
	}
	roles, err := s.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		perms, err := s.repo.ListRolePermissions(ctx, role.ID)
		if err != nil {
			return false, err
		}
		for _, p := range perms {
			if p.Name == permission {
				return true, nil
			}
		}
	}
	return false, nil
}

// RolesOf returns the roles held by a user.
func (s *Service) RolesOf(ctx context.Context, userID string) ([]Role, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListUserRoles(ctx, userID)
}

// PermissionsOf returns the permissions granted to a role.
func (s *Service) PermissionsOf(ctx context.Context, roleID string) ([]Permission, error) {
	role, err := s.getRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissions(ctx, role.ID)
}

// EffectivePermissions returns the sorted, deduplicated permission names a
// user holds through all roles. Roles are expanded concurrently.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	userID, err := shared.ParseID("user", userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	grants := make([][]Permission, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, role := range roles {
		g.Go(func() error {
			perms, err := s.repo.ListRolePermissions(gctx, role.ID)
			if err != nil {
				return err
			}
			grants[i] = perms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	names := []string{}
	for _, perms := range grants {
		for _, p := range perms {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Grant adds permissionID to roleID. Granting an existing pair is a conflict.
func (s *Service) Grant(ctx context.Context, roleID, permissionID string) error {
	role, perm, err := s.endpoints(ctx, roleID, permissionID)
	if err != nil {
		return err
	}
	if err := s.repo.GrantPermission(ctx, role.ID, perm.ID); err != nil {
		return err
	}
	s.record(ctx, "grant_permission", "role", role.ID, map[string]any{"permission": perm.Name})
	return nil
}

// Revoke removes permissionID from roleID. A missing pair is not found.
func (s *Service) Revoke(ctx context.Context, roleID, permissionID string) error {
	roleID, err := shared.ParseID("role", roleID)
	if err != nil {
		return err
	}
	if permissionID, err = shared.ParseID("permission", permissionID); err != nil {
		return err
	}
	if err := s.repo.RevokePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(ctx, "revoke_permission", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// AssignRole gives roleID to userID. Assignment is additive; assigning a
// held role is a conflict.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	userID, err := shared.ParseID("user", userID)
	if err != nil {
		return err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	role, err := s.getRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.record(ctx, "assign_role", "user", userID, map[string]any{"role": role.Name})
	return nil
}

// UnassignRole removes roleID from userID. A missing pair is not found.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID, err := shared.ParseID("user", userID)
	if err != nil {
		return err
	}
	if roleID, err = shared.ParseID("role", roleID); err != nil {
		return err
	}
	if err := s.repo.UnassignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, "unassign_role", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role with its permissions.
func (s *Service) GetRole(ctx context.Context, id string) (RoleDetail, error) {
	role, err := s.getRole(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	perms, err := s.repo.ListRolePermissions(ctx, role.ID)
	if err != nil {
		return RoleDetail{}, err
	}
	return RoleDetail{Role: role, Permissions: perms}, nil
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	in, err := cleanRoleInput(in)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, in)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "create_role", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or redescribes a role.
func (s *Service) UpdateRole(ctx context.Context, id string, in RoleInput) (Role, error) {
	in, err := cleanRoleInput(in)
	if err != nil {
		return Role{}, err
	}
	if id, err = shared.ParseID("role", id); err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, in)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "update_role", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role nobody holds and nothing is granted to.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	id, err := shared.ParseID("role", id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "delete_role", "role", id, nil)
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission inserts a new permission.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return Permission{}, shared.Validation("name", "permission name is required")
	}
	perm, err := s.repo.CreatePermission(ctx, in)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "create_permission", "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// DeletePermission removes a permission no role is granted.
func (s *Service) DeletePermission(ctx context.Context, id string) error {
	id, err := shared.ParseID("permission", id)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "delete_permission", "permission", id, nil)
	return nil
}

// EnsureRole returns the role named in.Name, creating it when absent.
func (s *Service) EnsureRole(ctx context.Context, in RoleInput) (Role, error) {
	role, err := s.repo.GetRoleByName(ctx, strings.TrimSpace(in.Name))
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Role{}, err
	}
	return s.CreateRole(ctx, in)
}

// EnsurePermission returns the permission named in.Name, creating it when
// absent.
func (s *Service) EnsurePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	perm, err := s.repo.GetPermissionByName(ctx, strings.TrimSpace(in.Name))
	if err == nil {
		return perm, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Permission{}, err
	}
	return s.CreatePermission(ctx, in)
}

// Bootstrap makes sure every role in grants exists and holds its listed
// permissions. Pairs already granted are left alone, so it can run on every
// deploy.
func (s *Service) Bootstrap(ctx context.Context, grants map[string][]string) error {
	roleNames := make([]string, 0, len(grants))
	for name := range grants {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)
	for _, roleName := range roleNames {
		role, err := s.EnsureRole(ctx, RoleInput{Name: roleName})
		if err != nil {
			return err
		}
		for _, permName := range grants[roleName] {
			perm, err := s.EnsurePermission(ctx, PermissionInput{Name: permName})
			if err != nil {
				return err
			}
			if err := s.Grant(ctx, role.ID, perm.ID); err != nil && !errors.Is(err, shared.ErrConflict) {
				return err
			}
		}
	}
	return nil
}

func (s *Service) endpoints(ctx context.Context, roleID, permissionID string) (Role, Permission, error) {
	role, err := s.getRole(ctx, roleID)
	if err != nil {
		return Role{}, Permission{}, err
	}
	if permissionID, err = shared.ParseID("permission", permissionID); err != nil {
		return Role{}, Permission{}, err
	}
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return Role{}, Permission{}, err
	}
	return role, perm, nil
}

func (s *Service) getRole(ctx context.Context, id string) (Role, error) {
	id, err := shared.ParseID("role", id)
	if err != nil {
		return Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if _, err := shared.ParseID("user", userID); err != nil {
		return err
	}
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return shared.NotFound("user")
	}
	return nil
}

func (s *Service) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	var actorID string
	if actor := shared.ActorFromContext(ctx); actor != nil {
		actorID = actor.UserID
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
	})
}

func cleanRoleInput(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, shared.Validation("name", "role name is required")
	}
	return in, nil
}
