package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"accessplane/internal/apperr"
	auditdomain "accessplane/internal/audit/domain"
	auditservice "accessplane/internal/audit/service"
	"accessplane/internal/permission/domain"
	"accessplane/internal/permission/repository"
	"accessplane/internal/security"
)

// CreateInput carries the fields for creating a permission.
type CreateInput struct {
	Name        string
	Description string
	Resource    string
	Action      domain.Action
}

// UpdateInput carries a partial permission update. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Description *string
}

// Service implements permission management. The (resource, action) pair and
// the name are both unique; permissions still included in a role cannot be
// deleted.
type Service struct {
	repo  repository.Repository
	audit *auditservice.Service
	now   func() time.Time
}

// NewService returns a permission service.
func NewService(repo repository.Repository, audit *auditservice.Service) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// Get returns the permission by id. Returns apperr.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id string) (*domain.Permission, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ErrNotFound
	}
	return p, nil
}

// List returns all permissions ordered by resource then action.
func (s *Service) List(ctx context.Context) ([]*domain.Permission, error) {
	return s.repo.List(ctx)
}

// Create validates and persists the permission. When Name is empty it defaults
// to the canonical resource:action form.
func (s *Service) Create(ctx context.Context, actor security.Identity, in CreateInput, meta auditdomain.RequestMeta) (*domain.Permission, error) {
	name := in.Name
	if name == "" {
		name = domain.Format(in.Resource, string(in.Action))
	}
	now := s.now().UTC()
	p := &domain.Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Resource:    in.Resource,
		Action:      in.Action,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, apperr.ErrBadRequest
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionCreate,
		Resource:   "permissions",
		ResourceID: p.ID,
		Metadata:   map[string]any{"name": p.Name, "resource": p.Resource, "action": string(p.Action)},
	})
	return p, nil
}

// Update renames or re-describes the permission. Resource and action are
// fixed at creation; a different atom is a different permission.
func (s *Service) Update(ctx context.Context, actor security.Identity, id string, in UpdateInput, meta auditdomain.RequestMeta) (*domain.Permission, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ErrNotFound
	}

	before := map[string]any{"name": p.Name, "description": p.Description}

	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	p.UpdatedAt = s.now().UTC()

	if err := p.Validate(); err != nil {
		return nil, apperr.ErrBadRequest
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionUpdate,
		Resource:   "permissions",
		ResourceID: p.ID,
		Metadata: map[string]any{
			"before": before,
			"after":  map[string]any{"name": p.Name, "description": p.Description},
		},
	})
	return p, nil
}

// Delete removes the permission. Returns apperr.ErrBadRequest while any role
// still includes it.
func (s *Service) Delete(ctx context.Context, actor security.Identity, id string, meta auditdomain.RequestMeta) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.ErrNotFound
	}

	inUse, err := s.repo.CountRolesUsing(ctx, id)
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
		Resource:   "permissions",
		ResourceID: id,
		Metadata:   map[string]any{"name": p.Name},
	})
	return nil
}

func (s *Service) append(ctx context.Context, actor security.Identity, meta auditdomain.RequestMeta, e *auditdomain.Entry) {
	e.ActorID = actor.UserID
	e.ActorEmail = actor.Email
	e.IPAddress = meta.IPAddress
	e.UserAgent = meta.UserAgent
	if _, err := s.audit.Append(ctx, e); err != nil {
		log.Printf("permissions: audit append failed: %v", err)
	}
}
