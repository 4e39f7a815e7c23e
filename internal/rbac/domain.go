package rbac

import "time"

// Role represents a named permission bundle.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleDetail is a role together with its current grants.
type RoleDetail struct {
	Role
	Permissions []Permission `json:"permissions"`
}

// RoleInput carries role create and update fields.
type RoleInput struct {
	Name        string
	Description string
}

// PermissionInput carries permission create fields.
type PermissionInput struct {
	Name        string
	Description string
}
