package repository

import (
	"context"

	"accessplane/internal/role/domain"
)

// Repository defines persistence for roles and their permission sets.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByIDWithPermissions(ctx context.Context, id string) (*domain.RoleWithPermissions, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]*domain.Role, error)
	Create(ctx context.Context, r *domain.Role) error
	Update(ctx context.Context, r *domain.Role) error
	Delete(ctx context.Context, id string) (bool, error)
}
