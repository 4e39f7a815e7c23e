package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/teamdesk/identity/internal/platform/httpx"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	errors    httpx.ErrorResponder
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, debug bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbac,
		errors:    httpx.ErrorResponder{Logger: logger, Debug: debug},
		validator: httpx.NewValidator(),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermReadUser))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermUpdateUser))
		r.Patch("/{userID}", h.updateUser)
		r.Post("/{userID}/activate", h.activateUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermDeleteUser))
		r.Post("/{userID}/deactivate", h.deactivateUser)
		r.Delete("/{userID}", h.deactivateUser)
	})
}

type updateRequest struct {
	Email        *string `json:"email" validate:"omitempty,email"`
	Username     *string `json:"username" validate:"omitempty,min=1,max=64"`
	Phone        *string `json:"phone" validate:"omitempty,max=32"`
	Location     *string `json:"location" validate:"omitempty,max=128"`
	DepartmentID *string `json:"department_id" validate:"omitempty,max=64"`
	IsActive     *bool   `json:"is_active"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"active": "active must be true or false"})
			return
		}
		filter.Active = &active
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	page, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "users retrieved successfully", page)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "user retrieved successfully", user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	user, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "userID"), UpdateInput(req))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "user updated successfully", user)
}

func (h *Handler) activateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Activate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "user activated successfully", user)
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "user deactivated successfully", user)
}
