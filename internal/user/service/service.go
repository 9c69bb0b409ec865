package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"accessplane/internal/apperr"
	auditdomain "accessplane/internal/audit/domain"
	auditservice "accessplane/internal/audit/service"
	rolerepository "accessplane/internal/role/repository"
	"accessplane/internal/security"
	sessionservice "accessplane/internal/session/service"
	"accessplane/internal/user/domain"
	"accessplane/internal/user/repository"
)

// CreateInput carries the fields for creating a user.
type CreateInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	RoleID    string
	IsActive  bool
}

// UpdateInput carries a partial user update. Nil fields are left unchanged.
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	RoleID    *string
	IsActive  *bool
}

// ListResult is one page of users with the total count.
type ListResult struct {
	Users []*domain.User
	Total int64
}

// Service implements user management. Mutations are attributed to an actor
// and recorded in the audit trail.
type Service struct {
	repo     repository.Repository
	roleRepo rolerepository.Repository
	sessions *sessionservice.Service
	hasher   *security.Hasher
	audit    *auditservice.Service
	now      func() time.Time
}

// NewService returns a user service.
func NewService(repo repository.Repository, roleRepo rolerepository.Repository, sessions *sessionservice.Service, hasher *security.Hasher, audit *auditservice.Service) *Service {
	return &Service{
		repo:     repo,
		roleRepo: roleRepo,
		sessions: sessions,
		hasher:   hasher,
		audit:    audit,
		now:      time.Now,
	}
}

// Get returns the user by id. Returns apperr.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrNotFound
	}
	return user, nil
}

// List returns users newest first. limit defaults to 20 and is capped at 100.
func (s *Service) List(ctx context.Context, page, limit int32) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	users, total, err := s.repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &ListResult{Users: users, Total: total}, nil
}

// Create validates the input, hashes the password and persists the user.
// Returns apperr.ErrBadRequest when the role does not exist and
// apperr.ErrConflict when the email is taken.
func (s *Service) Create(ctx context.Context, actor security.Identity, in CreateInput, meta auditdomain.RequestMeta) (*domain.User, error) {
	role, err := s.roleRepo.GetByID(ctx, in.RoleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperr.ErrBadRequest
	}

	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		RoleID:       in.RoleID,
		IsActive:     in.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, apperr.ErrBadRequest
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionCreate,
		Resource:   "users",
		ResourceID: user.ID,
		Metadata:   map[string]any{"email": user.Email, "role_id": user.RoleID},
	})
	return user, nil
}

// Update applies a partial update. Deactivating a user revokes all their
// sessions so existing refresh tokens stop working immediately.
func (s *Service) Update(ctx context.Context, actor security.Identity, id string, in UpdateInput, meta auditdomain.RequestMeta) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrNotFound
	}

	before := map[string]any{
		"email":     user.Email,
		"role_id":   user.RoleID,
		"is_active": user.IsActive,
	}
	deactivated := false

	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.RoleID != nil && *in.RoleID != user.RoleID {
		role, err := s.roleRepo.GetByID(ctx, *in.RoleID)
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, apperr.ErrBadRequest
		}
		user.RoleID = *in.RoleID
	}
	if in.IsActive != nil {
		deactivated = user.IsActive && !*in.IsActive
		user.IsActive = *in.IsActive
	}
	user.UpdatedAt = s.now().UTC()

	if err := user.Validate(); err != nil {
		return nil, apperr.ErrBadRequest
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	if deactivated {
		if _, err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionUpdate,
		Resource:   "users",
		ResourceID: user.ID,
		Metadata: map[string]any{
			"before": before,
			"after": map[string]any{
				"email":     user.Email,
				"role_id":   user.RoleID,
				"is_active": user.IsActive,
			},
		},
	})
	return user, nil
}

// Delete removes the user and revokes all their sessions. Actors may not
// delete themselves.
func (s *Service) Delete(ctx context.Context, actor security.Identity, id string, meta auditdomain.RequestMeta) error {
	if actor.UserID == id {
		return apperr.ErrBadRequest
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.ErrNotFound
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.ErrNotFound
	}
	if _, err := s.sessions.RevokeAll(ctx, id); err != nil {
		return err
	}

	s.append(ctx, actor, meta, &auditdomain.Entry{
		Action:     auditdomain.ActionDelete,
		Resource:   "users",
		ResourceID: id,
		Metadata:   map[string]any{"email": user.Email},
	})
	return nil
}

func (s *Service) append(ctx context.Context, actor security.Identity, meta auditdomain.RequestMeta, e *auditdomain.Entry) {
	e.ActorID = actor.UserID
	e.ActorEmail = actor.Email
	e.IPAddress = meta.IPAddress
	e.UserAgent = meta.UserAgent
	if _, err := s.audit.Append(ctx, e); err != nil {
		log.Printf("users: audit append failed: %v", err)
	}
}
