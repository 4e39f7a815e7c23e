package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/teamdesk/identity/internal/platform/httpx"
	"github.com/teamdesk/identity/internal/shared"
)

// RequireFunc builds a middleware demanding one permission.
type RequireFunc func(permission string) func(http.Handler) http.Handler

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      *Gate
	require   RequireFunc
	errors    httpx.ErrorResponder
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate *Gate, require RequireFunc, debug bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		gate:      gate,
		require:   require,
		errors:    httpx.ErrorResponder{Logger: logger, Debug: debug},
		validator: httpx.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/complete-password", h.handleCompletePassword)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.Middleware)
		r.Get("/me", h.handleProfile)
		r.Post("/change-password", h.handleChangePassword)
		r.With(h.require(shared.PermCreateUser)).Post("/register", h.handleRegister)
		r.With(h.require(shared.PermUpdateUser)).Post("/set-password", h.handleSetPassword)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username     string `json:"username" validate:"required_without=Name,max=64"`
	Name         string `json:"name" validate:"max=64"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"omitempty,min=8,max=72"`
	Role         string `json:"role" validate:"required_without=RoleID"`
	RoleID       string `json:"role_id" validate:"omitempty,uuid"`
	Status       string `json:"status" validate:"omitempty,oneof=active inactive"`
	Phone        string `json:"phone" validate:"omitempty,max=32"`
	Location     string `json:"location" validate:"omitempty,max=128"`
	DepartmentID string `json:"department_id" validate:"omitempty,max=64"`
}

type setPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type completePasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "login successful", result)
}

// handleLogout is stateless; the client discards its token.
func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	httpx.OK(w, http.StatusOK, "logout successful", nil)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	username := req.Username
	if username == "" {
		username = req.Name
	}
	var createdBy string
	if actor := shared.ActorFromContext(r.Context()); actor != nil {
		createdBy = actor.UserID
	}
	profile, err := h.service.Register(r.Context(), RegisterInput{
		Username:     username,
		Email:        req.Email,
		Password:     req.Password,
		RoleName:     req.Role,
		RoleID:       req.RoleID,
		Status:       req.Status,
		Phone:        req.Phone,
		Location:     req.Location,
		DepartmentID: req.DepartmentID,
		CreatedBy:    createdBy,
	})
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	message := "user registered successfully"
	if req.Password == "" {
		message = "user registered successfully; a password setup email has been sent"
	}
	httpx.OK(w, http.StatusCreated, message, profile)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		h.errors.Respond(w, r, shared.Unauthorized(shared.ReasonMissingToken, "authentication required"))
		return
	}
	profile, err := h.service.GetProfile(r.Context(), actor.UserID)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "profile retrieved successfully", profile)
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	profile, err := h.service.SetPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "password set successfully", profile)
}

func (h *Handler) handleCompletePassword(w http.ResponseWriter, r *http.Request) {
	var req completePasswordRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	profile, err := h.service.CompletePasswordLink(r.Context(), req.Token, req.Password)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "password set successfully", profile)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "password reset email sent", nil)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		h.errors.Respond(w, r, shared.Unauthorized(shared.ReasonMissingToken, "authentication required"))
		return
	}
	if err := h.service.ChangePassword(r.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "password changed successfully", nil)
}
