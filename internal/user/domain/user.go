package domain

import (
	"errors"
	"time"
)

// User is the core user entity. RoleID must reference an existing role at
// creation and update time; that check lives in the user service, not here.
type User struct {
	ID           string
	Email        string // unique, stored lowercase
	PasswordHash string
	FirstName    string
	LastName     string
	RoleID       string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.RoleID == "" {
		return errors.New("role_id is required")
	}
	return nil
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
