package domain

import (
	"errors"
	"time"
)

// Role is a named, reusable set of permissions assigned to users.
// System roles (IsSystem true) are immutable and undeletable.
type Role struct {
	ID            string
	Name          string // unique
	Description   string
	PermissionIDs []string // no duplicates; each must resolve to an existing permission at write time
	IsSystem      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoleWithPermissions is a role expanded to its full permission set,
// as needed by policy evaluation.
type RoleWithPermissions struct {
	Role
	Permissions []RolePermission
}

// RolePermission is the permission projection carried by an expanded role.
type RolePermission struct {
	ID       string
	Name     string
	Resource string
	Action   string
}

// PermissionNames returns the exact permission names held by the role.
func (r *RoleWithPermissions) PermissionNames() []string {
	names := make([]string, len(r.Permissions))
	for i, p := range r.Permissions {
		names[i] = p.Name
	}
	return names
}

// Validate validates the role for persistence.
func (r *Role) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	seen := make(map[string]struct{}, len(r.PermissionIDs))
	for _, id := range r.PermissionIDs {
		if id == "" {
			return errors.New("permission id must not be empty")
		}
		if _, ok := seen[id]; ok {
			return errors.New("duplicate permission id: " + id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
