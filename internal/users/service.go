package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]auth.User, error)
	GetUser(ctx context.Context, id string) (*auth.User, error)
	FindUserByEmail(ctx context.Context, email string) (*auth.User, error)
	FindUserByUsername(ctx context.Context, username string) (*auth.User, error)
	UpdateUser(ctx context.Context, id string, in UpdateInput) (*auth.User, error)
	SetActive(ctx context.Context, id string, active bool) (*auth.User, error)
	ListRolesByUser(ctx context.Context, ids []string) (map[string][]auth.RoleRef, error)
}

// Service handles user administration. Users are never hard-deleted.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListUsers returns a page of users with their roles.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = DefaultPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	users, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	roles, err := s.repo.ListRolesByUser(ctx, ids)
	if err != nil {
		return Page{}, err
	}
	profiles := make([]*auth.Profile, len(users))
	for i := range users {
		profiles[i] = auth.NewProfile(&users[i], roles[users[i].ID])
	}
	return Page{Users: profiles, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetUser returns a single user view.
func (s *Service) GetUser(ctx context.Context, id string) (*auth.Profile, error) {
	id, err := shared.ParseID("user", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

// UpdateUser applies a fixed-field patch. Email and username stay unique.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateInput) (*auth.Profile, error) {
	if in.Empty() {
		return nil, shared.Validation("body", "no updatable fields supplied")
	}
	id, err := shared.ParseID("user", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := shared.NormalizeEmail(*in.Email)
		if email == "" {
			return nil, shared.Validation("email", "email must not be empty")
		}
		if err := s.ensureFree(id, "email", func() (*auth.User, error) { return s.repo.FindUserByEmail(ctx, email) }); err != nil {
			return nil, err
		}
		in.Email = &email
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, shared.Validation("username", "username must not be empty")
		}
		if err := s.ensureFree(id, "username", func() (*auth.User, error) { return s.repo.FindUserByUsername(ctx, username) }); err != nil {
			return nil, err
		}
		in.Username = &username
	}
	in.Phone = trimmed(in.Phone)
	in.Location = trimmed(in.Location)
	in.DepartmentID = trimmed(in.DepartmentID)

	user, err := s.repo.UpdateUser(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "update_user", user.ID, nil)
	return s.profile(ctx, user)
}

// Deactivate flips the user to inactive. The user can no longer log in and
// outstanding tokens are rejected by the gate.
func (s *Service) Deactivate(ctx context.Context, id string) (*auth.Profile, error) {
	return s.setActive(ctx, id, false)
}

// Activate reverses Deactivate.
func (s *Service) Activate(ctx context.Context, id string) (*auth.Profile, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (*auth.Profile, error) {
	id, err := shared.ParseID("user", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	action := "deactivate_user"
	if active {
		action = "activate_user"
	}
	s.record(ctx, action, user.ID, nil)
	return s.profile(ctx, user)
}

func (s *Service) profile(ctx context.Context, user *auth.User) (*auth.Profile, error) {
	roles, err := s.repo.ListRolesByUser(ctx, []string{user.ID})
	if err != nil {
		return nil, err
	}
	return auth.NewProfile(user, roles[user.ID]), nil
}

func (s *Service) ensureFree(id, field string, find func() (*auth.User, error)) error {
	existing, err := find()
	switch {
	case err == nil && existing.ID != id:
		return shared.Conflict("user", field)
	case err == nil, errors.Is(err, shared.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) record(ctx context.Context, action, userID string, meta map[string]any) {
	var actorID string
	if actor := shared.ActorFromContext(ctx); actor != nil {
		actorID = actor.UserID
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: userID,
		Meta:     meta,
	})
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
