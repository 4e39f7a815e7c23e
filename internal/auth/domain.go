package auth

import (
	"strings"
	"time"
)

// User status values accepted on registration.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User represents a principal as stored. PasswordHash is empty until the
// password has been set.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	Phone        string
	Location     string
	DepartmentID string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the user can authenticate by password.
func (u *User) HasPassword() bool {
	return strings.TrimSpace(u.PasswordHash) != ""
}

// RoleRef is the role tuple embedded in profile views.
type RoleRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Profile is the outward view of a user. It never carries the hash.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Phone        string    `json:"phone,omitempty"`
	Location     string    `json:"location,omitempty"`
	DepartmentID string    `json:"department_id,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Roles        []RoleRef `json:"roles"`
}

// NewProfile strips credentials from u and attaches roles.
func NewProfile(u *User, roles []RoleRef) *Profile {
	if roles == nil {
		roles = []RoleRef{}
	}
	return &Profile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		IsActive:     u.IsActive,
		Phone:        u.Phone,
		Location:     u.Location,
		DepartmentID: u.DepartmentID,
		CreatedBy:    u.CreatedBy,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Roles:        roles,
	}
}

// RoleNames extracts names in order.
func RoleNames(roles []RoleRef) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

// RegisterInput carries a registration request. Either RoleName or RoleID
// selects the initial role; RoleID wins when both are set.
type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	RoleName     string
	RoleID       string
	Status       string
	Phone        string
	Location     string
	DepartmentID string
	CreatedBy    string
}

// CreateUserParams is what the store persists for a new user together with
// the initial role assignment.
type CreateUserParams struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	Phone        string
	Location     string
	DepartmentID string
	CreatedBy    string
	RoleID       string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	User  *Profile `json:"user"`
	Token string   `json:"token"`
}
