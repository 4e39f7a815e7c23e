package users

import "github.com/teamdesk/identity/internal/auth"

// DefaultPageSize bounds list results when no limit is given.
const DefaultPageSize = 50

// ListFilter narrows user listings.
type ListFilter struct {
	Search string
	Active *bool
	Limit  int
	Offset int
}

// UpdateInput is the fixed set of updatable user fields. Nil fields are left
// unchanged. Roles are not updatable here; assignment goes through rbac.
type UpdateInput struct {
	Email        *string
	Username     *string
	Phone        *string
	Location     *string
	DepartmentID *string
	IsActive     *bool
}

// Empty reports whether the update touches no field.
func (in UpdateInput) Empty() bool {
	return in.Email == nil && in.Username == nil && in.Phone == nil &&
		in.Location == nil && in.DepartmentID == nil && in.IsActive == nil
}

// Page is a listing result.
type Page struct {
	Users  []*auth.Profile `json:"users"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
