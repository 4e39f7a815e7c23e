package shared

// Core platform permissions.
const (
	PermCreateUser = "CREATE_USER"
	PermReadUser   = "READ_USER"
	PermUpdateUser = "UPDATE_USER"
	PermDeleteUser = "DELETE_USER"

	PermManageRoles       = "MANAGE_ROLES"
	PermManagePermissions = "MANAGE_PERMISSIONS"
)

// Built-in roles created by the seed.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleUser    = "USER"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermCreateUser,
		PermReadUser,
		PermUpdateUser,
		PermDeleteUser,
		PermManageRoles,
		PermManagePermissions,
	}
}

// DefaultGrants maps each built-in role to the permissions the seed grants.
func DefaultGrants() map[string][]string {
	return map[string][]string{
		RoleAdmin:   CoreScopes(),
		RoleManager: {PermCreateUser, PermReadUser, PermUpdateUser},
		RoleUser:    {PermReadUser},
	}
}
