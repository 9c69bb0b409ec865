package repository

import (
	"context"
	"time"

	"accessplane/internal/audit/domain"
)

// Repository defines persistence for the append-only audit trail.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	GetByID(ctx context.Context, id string) (*domain.Entry, error)
	// List returns entries matching the filter, newest first, with the total
	// match count for pagination.
	List(ctx context.Context, f domain.Filter, limit, offset int32) ([]*domain.Entry, int64, error)
	// Aggregate groups entries by the given dimension, optionally restricted to
	// the inclusive [start, end] range, and returns per-group counts with first
	// and last occurrence, ordered by count descending.
	Aggregate(ctx context.Context, group domain.GroupBy, start, end *time.Time) ([]*domain.Aggregation, error)
	// Trail returns the full history for one resource instance, oldest first.
	Trail(ctx context.Context, resource, resourceID string) ([]*domain.Entry, error)
}
