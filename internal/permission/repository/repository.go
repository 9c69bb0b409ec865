package repository

import (
	"context"

	"accessplane/internal/permission/domain"
)

// Repository defines persistence for permissions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	GetByName(ctx context.Context, name string) (*domain.Permission, error)
	GetByResourceAction(ctx context.Context, resource string, action domain.Action) (*domain.Permission, error)
	CountByIDs(ctx context.Context, ids []string) (int64, error)
	CountRolesUsing(ctx context.Context, id string) (int64, error)
	List(ctx context.Context) ([]*domain.Permission, error)
	Create(ctx context.Context, p *domain.Permission) error
	Update(ctx context.Context, p *domain.Permission) error
	Delete(ctx context.Context, id string) (bool, error)
}
