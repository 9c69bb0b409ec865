package repository

import (
	"context"
	"time"

	"accessplane/internal/session/domain"
)

// Repository defines persistence for refresh-token sessions.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// ClaimByTokenHash atomically revokes the session identified by tokenHash if
	// it is still valid. Exactly one concurrent caller wins the claim.
	ClaimByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllByUser(ctx context.Context, userID string) (int64, error)
	// DeleteStale removes rows that are revoked or past expiry.
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}
