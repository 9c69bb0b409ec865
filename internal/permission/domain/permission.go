package domain

import (
	"errors"
	"strings"
	"time"
)

// Action is one of the grantable verbs on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionManage subsumes every other action on its resource, but only in the
	// single-check decision path. Bulk checks match exact names.
	ActionManage Action = "manage"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
		return true
	default:
		return false
	}
}

// Permission is a resource:action atom. The (Resource, Action) pair is unique,
// as is Name; Name is always exactly Format(Resource, Action) for seeded data
// but is stored separately so it stays stable if display names diverge.
type Permission struct {
	ID          string
	Name        string // unique
	Resource    string
	Action      Action
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the permission for persistence.
func (p *Permission) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Resource == "" {
		return errors.New("resource is required")
	}
	if !p.Action.Valid() {
		return errors.New("unsupported action: " + string(p.Action))
	}
	return nil
}

// Format returns the canonical permission name for a resource and action,
// always exactly resource + ":" + action.
func Format(resource, action string) string {
	return resource + ":" + action
}

// Parse splits a permission name into resource and action. The action may be
// empty if the name has no separator.
func Parse(name string) (resource, action string) {
	resource, action, _ = strings.Cut(name, ":")
	return resource, action
}
