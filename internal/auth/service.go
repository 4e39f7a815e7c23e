package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamdesk/identity/internal/shared"
)

const (
	// DefaultLookupTimeout bounds the login credential lookup.
	DefaultLookupTimeout = 10 * time.Second
	// MinPasswordLength is the shortest password accepted.
	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = MaxHashInputBytes

	defaultSetupLinkTTL  = 24 * time.Hour
	defaultResetLinkTTL  = time.Hour
	defaultNotifyTimeout = 15 * time.Second
)

// Auth event names reported to the EventObserver.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventSetPassword    = "set_password"
	EventChangePassword = "change_password"
	EventForgotPassword = "forgot_password"
	EventNotify         = "notify"
)

// Notifier delivers account lifecycle emails. Calls are fire-and-forget.
type Notifier interface {
	SendPasswordSetupEmail(ctx context.Context, email, name, token string) error
	SendWelcomeEmail(ctx context.Context, email, name string, isConfirmation bool) error
	SendForgotPasswordEmail(ctx context.Context, email, token string) error
}

// EventObserver receives auth outcomes for metrics.
type EventObserver interface {
	AuthEvent(event, outcome string)
	GateDecision(decision string)
}

// Options carries the optional collaborators of the Service.
type Options struct {
	Logger        *slog.Logger
	Links         LinkStore
	Notifier      Notifier
	Audit         shared.AuditRecorder
	Observer      EventObserver
	LookupTimeout time.Duration
	SetupLinkTTL  time.Duration
	ResetLinkTTL  time.Duration
	NotifyTimeout time.Duration
}

// Service implements registration, login and password transitions.
type Service struct {
	repo          Repository
	hasher        *Hasher
	tokens        *TokenCodec
	links         LinkStore
	notifier      Notifier
	audit         shared.AuditRecorder
	observer      EventObserver
	logger        *slog.Logger
	lookupTimeout time.Duration
	setupLinkTTL  time.Duration
	resetLinkTTL  time.Duration
	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher *Hasher, tokens *TokenCodec, opts Options) *Service {
	s := &Service{
		repo:          repo,
		hasher:        hasher,
		tokens:        tokens,
		links:         opts.Links,
		notifier:      opts.Notifier,
		audit:         opts.Audit,
		observer:      opts.Observer,
		logger:        opts.Logger,
		lookupTimeout: opts.LookupTimeout,
		setupLinkTTL:  opts.SetupLinkTTL,
		resetLinkTTL:  opts.ResetLinkTTL,
		notifyTimeout: opts.NotifyTimeout,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.lookupTimeout <= 0 {
		s.lookupTimeout = DefaultLookupTimeout
	}
	if s.setupLinkTTL <= 0 {
		s.setupLinkTTL = defaultSetupLinkTTL
	}
	if s.resetLinkTTL <= 0 {
		s.resetLinkTTL = defaultResetLinkTTL
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}
	return s
}

// Tokens exposes the codec used to mint access tokens.
func (s *Service) Tokens() *TokenCodec {
	return s.tokens
}

// Wait blocks until every in-flight notification has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Register creates a principal. Without a password the principal is left in
// the registered-no-password state and receives a setup link.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = shared.NormalizeEmail(in.Email)
	if strings.TrimSpace(in.Password) == "" {
		in.Password = ""
	}
	if in.Username == "" {
		return nil, shared.Validation("username", "username is required")
	}
	if in.Email == "" {
		return nil, shared.Validation("email", "email is required")
	}
	if in.Password != "" {
		if err := checkPassword(in.Password); err != nil {
			return nil, err
		}
	}
	active, err := parseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	if err := s.ensureAbsent("email", func() (*User, error) { return s.repo.FindUserByEmail(ctx, in.Email) }); err != nil {
		return nil, s.fail(EventRegister, err)
	}
	if err := s.ensureAbsent("username", func() (*User, error) { return s.repo.FindUserByUsername(ctx, in.Username) }); err != nil {
		return nil, s.fail(EventRegister, err)
	}
	role, err := s.resolveRole(ctx, in)
	if err != nil {
		return nil, s.fail(EventRegister, err)
	}

	var digest string
	if in.Password != "" {
		if digest, err = s.hasher.Hash(in.Password); err != nil {
			return nil, s.fail(EventRegister, shared.Internal("hash password", err))
		}
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		IsActive:     active,
		Phone:        strings.TrimSpace(in.Phone),
		Location:     strings.TrimSpace(in.Location),
		DepartmentID: strings.TrimSpace(in.DepartmentID),
		CreatedBy:    strings.TrimSpace(in.CreatedBy),
		RoleID:       role.ID,
	})
	if err != nil {
		return nil, s.fail(EventRegister, err)
	}

	if digest == "" {
		s.dispatch("password_setup", user.Email, func(ctx context.Context) error {
			token, err := s.issueLink(ctx, LinkSetup, user.Email, s.setupLinkTTL)
			if err != nil {
				return err
			}
			return s.notifier.SendPasswordSetupEmail(ctx, user.Email, user.Username, token)
		})
	} else {
		s.dispatch("welcome", user.Email, func(ctx context.Context) error {
			return s.notifier.SendWelcomeEmail(ctx, user.Email, user.Username, false)
		})
	}

	s.record(ctx, in.CreatedBy, "register", user.ID, map[string]any{"role": role.Name, "password_set": digest != ""})
	s.observe(EventRegister, "success")
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", role.Name))
	return NewProfile(user, []RoleRef{*role}), nil
}

// Login authenticates by email and password and mints an access token.
// Unknown, deactivated and wrong-password cases share one error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = shared.NormalizeEmail(email)
	if email == "" {
		return nil, shared.Validation("email", "email is required")
	}
	if password == "" {
		return nil, shared.Validation("password", "password is required")
	}

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, s.fail(EventLogin, shared.InvalidCredentials())
		}
		return nil, s.fail(EventLogin, err)
	}
	if !user.IsActive {
		return nil, s.fail(EventLogin, shared.InvalidCredentials())
	}
	if !user.HasPassword() {
		return nil, s.fail(EventLogin, shared.PasswordNotSet())
	}
	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMalformedDigest) {
			s.logger.Warn("stored digest unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, s.fail(EventLogin, shared.InvalidCredentials())
	}

	roles, err := s.repo.ListUserRoles(ctx, user.ID)
	if err != nil {
		return nil, s.fail(EventLogin, shared.Internal("load roles", err))
	}
	token, err := s.tokens.Issue(user.ID, RoleNames(roles), 0)
	if err != nil {
		return nil, s.fail(EventLogin, shared.Internal("issue token", err))
	}

	s.record(ctx, user.ID, "login", user.ID, nil)
	s.observe(EventLogin, "success")
	return &LoginResult{User: NewProfile(user, roles), Token: token}, nil
}

type lookupResult struct {
	user *User
	err  error
}

// lookupByEmail races the store against the lookup timeout. A late store
// answer is dropped into the buffered channel and discarded.
func (s *Service) lookupByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		user, err := s.repo.FindUserByEmail(ctx, email)
		done <- lookupResult{user: user, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, shared.Timeout("credential lookup", res.err)
		}
		return res.user, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, shared.Timeout("credential lookup", ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// GetProfile returns the hash-stripped view of a principal with its roles.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	userID, err := shared.ParseID("user", userID)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.ListUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return NewProfile(user, roles), nil
}

// SetPassword sets or resets the password of the principal owning email.
func (s *Service) SetPassword(ctx context.Context, email, newPassword string) (*Profile, error) {
	email = shared.NormalizeEmail(email)
	if email == "" {
		return nil, shared.Validation("email", "email is required")
	}
	if err := checkPassword(newPassword); err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, s.fail(EventSetPassword, err)
	}
	if err := s.storePassword(ctx, user, newPassword); err != nil {
		return nil, s.fail(EventSetPassword, err)
	}

	s.dispatch("password_confirmation", user.Email, func(ctx context.Context) error {
		return s.notifier.SendWelcomeEmail(ctx, user.Email, displayName(user), true)
	})
	s.record(ctx, user.ID, "set_password", user.ID, nil)
	s.observe(EventSetPassword, "success")
	return s.GetProfile(ctx, user.ID)
}

// CompletePasswordLink consumes a one-time setup or reset token and sets the
// password of the principal it was issued for.
func (s *Service) CompletePasswordLink(ctx context.Context, token, newPassword string) (*Profile, error) {
	if err := checkPassword(newPassword); err != nil {
		return nil, err
	}
	if s.links == nil {
		return nil, shared.Internal("complete password link", errors.New("link store not configured"))
	}
	grant, err := s.links.Consume(ctx, token)
	if err != nil {
		return nil, s.fail(EventSetPassword, err)
	}
	return s.SetPassword(ctx, grant.Email, newPassword)
}

// ForgotPassword sends a reset link. It fails only when no principal owns
// email; notifier outcome is never reported.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = shared.NormalizeEmail(email)
	if email == "" {
		return shared.Validation("email", "email is required")
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return s.fail(EventForgotPassword, err)
	}
	s.dispatch("password_reset", user.Email, func(ctx context.Context) error {
		token, err := s.issueLink(ctx, LinkReset, user.Email, s.resetLinkTTL)
		if err != nil {
			return err
		}
		return s.notifier.SendForgotPasswordEmail(ctx, user.Email, token)
	})
	s.observe(EventForgotPassword, "success")
	return nil
}

// ChangePassword replaces the password of an authenticated principal after
// checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return shared.Validation("current_password", "current password is required")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	userID, err := shared.ParseID("user", userID)
	if err != nil {
		return s.fail(EventChangePassword, err)
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return s.fail(EventChangePassword, err)
	}
	if !user.HasPassword() {
		return s.fail(EventChangePassword, shared.PasswordNotSet())
	}
	if err := s.hasher.Compare(currentPassword, user.PasswordHash); err != nil {
		return s.fail(EventChangePassword, shared.InvalidCredentials())
	}
	if err := s.storePassword(ctx, user, newPassword); err != nil {
		return s.fail(EventChangePassword, err)
	}
	s.record(ctx, user.ID, "change_password", user.ID, nil)
	s.observe(EventChangePassword, "success")
	return nil
}

func (s *Service) storePassword(ctx context.Context, user *User, plaintext string) error {
	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return shared.Internal("hash password", err)
	}
	return s.repo.UpdateUserPasswordHash(ctx, user.ID, digest)
}

func (s *Service) ensureAbsent(field string, find func() (*User, error)) error {
	_, err := find()
	switch {
	case err == nil:
		return shared.Conflict("user", field)
	case errors.Is(err, shared.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) resolveRole(ctx context.Context, in RegisterInput) (*RoleRef, error) {
	if id := strings.TrimSpace(in.RoleID); id != "" {
		id, err := shared.ParseID("role", id)
		if err != nil {
			return nil, err
		}
		return s.repo.FindRoleByID(ctx, id)
	}
	if name := strings.TrimSpace(in.RoleName); name != "" {
		return s.repo.FindRoleByName(ctx, name)
	}
	return nil, shared.Validation("role", "role is required")
}

func (s *Service) issueLink(ctx context.Context, purpose LinkPurpose, email string, ttl time.Duration) (string, error) {
	if s.links == nil {
		return "", errors.New("link store not configured")
	}
	return s.links.Issue(ctx, LinkGrant{Purpose: purpose, Email: email}, ttl)
}

// dispatch runs a notification off the request path. Failures are logged
// and never reach the caller.
func (s *Service) dispatch(kind, email string, send func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.observe(EventNotify, "failure")
			s.logger.Warn("notification failed",
				slog.String("kind", kind),
				slog.String("email", email),
				slog.Any("error", err),
			)
			return
		}
		s.observe(EventNotify, "success")
	}()
}

func (s *Service) fail(event string, err error) error {
	kind := shared.KindOf(err)
	s.observe(event, string(kind))
	if kind == shared.KindInternal || kind == shared.KindTimeout {
		s.logger.Error("auth operation failed", slog.String("event", event), slog.Any("error", err))
	}
	return err
}

func (s *Service) observe(event, outcome string) {
	if s.observer != nil {
		s.observer.AuthEvent(event, outcome)
	}
}

func (s *Service) record(ctx context.Context, actorID, action, userID string, meta map[string]any) {
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: userID,
		Meta:     meta,
	})
}

func checkPassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return shared.Validation("password", "password is required")
	}
	if len(password) < MinPasswordLength {
		return shared.Validation("password", "password must be at least 8 characters")
	}
	if len(password) > MaxPasswordBytes {
		return shared.Validation("password", "password must be at most 72 bytes")
	}
	return nil
}

func parseStatus(status string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", StatusActive:
		return true, nil
	case StatusInactive:
		return false, nil
	default:
		return false, shared.Validation("status", "status must be active or inactive")
	}
}

func displayName(u *User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
