package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/teamdesk/identity/internal/platform/httpx"
	"github.com/teamdesk/identity/internal/shared"
)

// Handler exposes role and permission administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	errors    httpx.ErrorResponder
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware, debug bool) *Handler {
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

// MountRoleRoutes registers role, grant and assignment routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermManageRoles))
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Get("/check", h.checkPermission)
		r.Get("/users/{userID}", h.listUserRoles)
		r.Get("/users/{userID}/permissions", h.effectivePermissions)
		r.Post("/users/{userID}", h.assignRole)
		r.Delete("/users/{userID}/{roleID}", h.unassignRole)
		r.Get("/{roleID}", h.getRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Get("/{roleID}/permissions", h.listRolePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermManageRoles, shared.PermManagePermissions))
		r.Post("/{roleID}/permissions", h.grantPermission)
		r.Delete("/{roleID}/permissions/{permissionID}", h.revokePermission)
	})
}

// MountPermissionRoutes registers permission catalogue routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(shared.PermManagePermissions))
		r.Get("/", h.listPermissions)
		r.Post("/", h.createPermission)
		r.Delete("/{permissionID}", h.deletePermission)
	})
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type grantRequest struct {
	PermissionID string `json:"permission_id" validate:"required,uuid"`
}

type assignRequest struct {
	RoleID string `json:"role_id" validate:"required,uuid"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "roles retrieved successfully", roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), RoleInput(req))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "role created successfully", role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "role retrieved successfully", role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "roleID"), RoleInput(req))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "role updated successfully", role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "role deleted successfully", nil)
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.PermissionsOf(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "role permissions retrieved successfully", perms)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	if err := h.service.Grant(r.Context(), chi.URLParam(r, "roleID"), req.PermissionID); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "permission granted successfully", nil)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Revoke(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID")); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission revoked successfully", nil)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.RolesOf(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "user roles retrieved successfully", roles)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.EffectivePermissions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "effective permissions retrieved successfully", perms)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), chi.URLParam(r, "userID"), req.RoleID); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "role assigned successfully", nil)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UnassignRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "role unassigned successfully", nil)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	permission := r.URL.Query().Get("permission")
	if userID == "" || permission == "" {
		httpx.ValidationProblem(w, map[string]string{"user_id": "user_id and permission are required"})
		return
	}
	ok, err := h.service.HasPermission(r.Context(), userID, permission)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission checked", map[string]any{
		"user_id":    userID,
		"permission": permission,
		"granted":    ok,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "permissions retrieved successfully", perms)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), PermissionInput(req))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "permission created successfully", perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePermission(r.Context(), chi.URLParam(r, "permissionID")); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission deleted successfully", nil)
}
