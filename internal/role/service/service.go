package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"accessplane/internal/apperr"
	auditdomain "accessplane/internal/audit/domain"
	auditservice "accessplane/internal/audit/service"
	permissionrepository "accessplane/internal/permission/repository"
	"accessplane/internal/role/domain"
	"accessplane/internal/role/repository"
	"accessplane/internal/security"
	userrepository "accessplane/internal/user/repository"
)

// CreateInput carries the fields for creating a role.
type CreateInput struct {
	Name          string
	Description   string
	PermissionIDs []string
}

// UpdateInput carries a partial role update. Nil fields are left unchanged.
type UpdateInput struct {
	Name          *string
	Description   *string
	PermissionIDs []string // nil leaves the set unchanged; empty clears it
}

// Service implements role management. System roles are immutable and roles
// referenced by users cannot be deleted.
type Service struct {
	repo     repository.Repository
	permRepo permissionrepository.Repository
	userRepo userrepository.Repository
	audit    *auditservice.Service
	now      func() time.Time
}

// NewService returns a role service.
func NewService(repo repository.Repository, permRepo permissionrepository.Repository, userRepo userrepository.Repository, audit *auditservice.Service) *Service {
	return &Service{
		repo:     repo,
		permRepo: permRepo,
		userRepo: userRepo,
		audit:    audit,
		now:      time.Now,
	}
}

// Get returns the role by id with its expanded permission set.
func (s *Service) Get(ctx context.Context, id string) (*domain.RoleWithPermissions, error) {
	role, err := s.repo.GetByIDWithPermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperr.ErrNotFound
	}
	return role, nil
}

// List returns all roles ordered by name.
func (s *Service) List(ctx context.Context) ([]*domain.Role, error) {
	return s.repo.List(ctx)
}

// Create validates the permission set and persists the role. Roles created
// through the service are never system roles.
func (s *Service) Create(ctx context.Context, actor security.Identity, in CreateInput, meta auditdomain.RequestMeta) (*domain.Role, error) {
	now := s.now().UTC()
	role := &domain.Role{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		PermissionIDs: in.PermissionIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := role.Validate(); err != nil {
		return nil, apperr.ErrBadRequest
	}
	if err := s.checkPermissionIDs(ctx, role.PermissionIDs); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, err
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionCreate,
		Resource:   "roles",
		ResourceID: role.ID,
		Metadata:   map[string]any{"name": role.Name, "permission_ids": role.PermissionIDs},
	})
	return role, nil
}

// Update applies a partial update. Returns apperr.ErrForbidden for system roles.
func (s *Service) Update(ctx context.Context, actor security.Identity, id string, in UpdateInput, meta auditdomain.RequestMeta) (*domain.Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperr.ErrNotFound
	}
	if role.IsSystem {
		return nil, apperr.ErrForbidden
	}

	before := map[string]any{"name": role.Name, "permission_ids": role.PermissionIDs}

	if in.Name != nil {
		role.Name = *in.Name
	}
	if in.Description != nil {
		role.Description = *in.Description
	}
	if in.PermissionIDs != nil {
		role.PermissionIDs = in.PermissionIDs
	}
	role.UpdatedAt = s.now().UTC()

	if err := role.Validate(); err != nil {
		return nil, apperr.ErrBadRequest
	}
	if err := s.checkPermissionIDs(ctx, role.PermissionIDs); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, err
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionUpdate,
		Resource:   "roles",
		ResourceID: role.ID,
		Metadata: map[string]any{
			"before": before,
			"after":  map[string]any{"name": role.Name, "permission_ids": role.PermissionIDs},
		},
	})
	return role, nil
}

// Delete removes the role. Returns apperr.ErrForbidden for system roles and
// apperr.ErrBadRequest while any user still holds the role.
func (s *Service) Delete(ctx context.Context, actor security.Identity, id string, meta auditdomain.RequestMeta) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if role == nil {
		return apperr.ErrNotFound
	}
	if role.IsSystem {
		return apperr.ErrForbidden
	}

	inUse, err := s.userRepo.CountByRoleID(ctx, id)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return apperr.ErrBadRequest
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.ErrNotFound
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionDelete,
		Resource:   "roles",
		ResourceID: id,
		Metadata:   map[string]any{"name": role.Name},
	})
	return nil
}

func (s *Service) checkPermissionIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.permRepo.CountByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return apperr.ErrBadRequest
	}
	return nil
}

func (s *Service) append(ctx context.Context, actor security.Identity, meta auditdomain.RequestMeta, e *auditdomain.Entry) {
	e.ActorID = actor.UserID
	e.ActorEmail = actor.Email
	e.IPAddress = meta.IPAddress
	e.UserAgent = meta.UserAgent
	if _, err := s.audit.Append(ctx, e); err != nil {
		log.Printf("roles: audit append failed: %v", err)
	}
}
