package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"accessplane/internal/apperr"
	"accessplane/internal/audit/domain"
	"accessplane/internal/audit/repository"
	"accessplane/internal/audit/stream"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is one page of audit entries, newest first.
type Page struct {
	Entries    []*domain.Entry
	Total      int64
	Page       int32
	Limit      int32
	TotalPages int32
}

// Service is the audit engine: it appends entries to the trail and serves
// list, aggregation and per-resource history queries.
type Service struct {
	repo     repository.Repository
	producer stream.Producer
	now      func() time.Time
}

// NewService returns an audit service. producer may be nil; mirroring is then
// disabled.
func NewService(repo repository.Repository, producer stream.Producer) *Service {
	return &Service{repo: repo, producer: producer, now: time.Now}
}

// Append records the entry. The id and timestamp are always assigned here;
// callers cannot backdate the trail. Returns the stored entry.
func (s *Service) Append(ctx context.Context, e *domain.Entry) (*domain.Entry, error) {
	if !e.Action.Valid() {
		return nil, apperr.ErrBadRequest
	}
	if e.ActorID == "" || e.Resource == "" {
		return nil, apperr.ErrBadRequest
	}

	stored := *e
	stored.ID = uuid.NewString()
	stored.Timestamp = s.now().UTC()
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	if err := s.repo.Create(ctx, &stored); err != nil {
		return nil, err
	}

	if s.producer != nil {
		// Best effort: the database row is the source of truth.
		if err := s.producer.Emit(ctx, &stored); err != nil {
			log.Printf("audit: mirror failed for entry %s: %v", stored.ID, err)
		}
	}
	return &stored, nil
}

// Get returns one entry by id. Returns apperr.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id string) (*domain.Entry, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.ErrNotFound
	}
	return e, nil
}

// List returns entries matching the filter, newest first. page is 1-indexed;
// limit defaults to 20 and is capped at 100.
func (s *Service) List(ctx context.Context, f domain.Filter, page, limit int32) (*Page, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, apperr.ErrBadRequest
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, apperr.ErrBadRequest
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	entries, total, err := s.repo.List(ctx, f, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	totalPages := int32(total / int64(limit))
	if total%int64(limit) != 0 {
		totalPages++
	}
	return &Page{
		Entries:    entries,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// Aggregate rolls the trail up by action, resource or actor, optionally
// restricted to the inclusive [start, end] range.
func (s *Service) Aggregate(ctx context.Context, group domain.GroupBy, start, end *time.Time) ([]*domain.Aggregation, error) {
	if !group.Valid() {
		return nil, apperr.ErrBadRequest
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, apperr.ErrBadRequest
	}
	return s.repo.Aggregate(ctx, group, start, end)
}

// Trail returns the full history for one resource instance, oldest first.
func (s *Service) Trail(ctx context.Context, resource, resourceID string) ([]*domain.Entry, error) {
	if resource == "" || resourceID == "" {
		return nil, apperr.ErrBadRequest
	}
	return s.repo.Trail(ctx, resource, resourceID)
}
