package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"accessplane/internal/apperr"
	"accessplane/internal/security"
	"accessplane/internal/session/domain"
	"accessplane/internal/session/repository"
	userdomain "accessplane/internal/user/domain"
	userrepository "accessplane/internal/user/repository"
)

// TokenPair is one issued access/refresh token pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service manages refresh-token sessions: issuing, single-use rotation,
// revocation and expiry sweeps. Access tokens are stateless; only refresh
// tokens have server-side state.
type Service struct {
	repo     repository.Repository
	userRepo userrepository.Repository
	tokens   *security.TokenProvider
	now      func() time.Time
}

// NewService returns a session service over the given repositories and token provider.
func NewService(repo repository.Repository, userRepo userrepository.Repository, tokens *security.TokenProvider) *Service {
	return &Service{repo: repo, userRepo: userRepo, tokens: tokens, now: time.Now}
}

// Issue creates a new session for the user: a short-lived access token and a
// refresh token whose hash is persisted for later rotation checks.
func (s *Service) Issue(ctx context.Context, u *userdomain.User) (*TokenPair, error) {
	id := security.Identity{UserID: u.ID, Email: u.Email, RoleID: u.RoleID}

	access, _, accessExp, err := s.tokens.IssueAccess(id)
	if err != nil {
		return nil, err
	}
	refresh, _, refreshExp, err := s.tokens.IssueRefresh(id)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		TokenHash: security.HashRefreshToken(refresh),
		UserID:    u.ID,
		ExpiresAt: refreshExp,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Rotate exchanges a refresh token for a fresh pair. The presented token is
// consumed atomically before anything else is checked, so a token replayed
// concurrently is accepted at most once. If the user behind a claimed token
// turned out missing or inactive, every remaining session for that user is
// revoked before the rotation is refused.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if _, err := s.tokens.ValidateRefresh(refreshToken); err != nil {
		return nil, apperr.ErrUnauthorized
	}

	claimed, err := s.repo.ClaimByTokenHash(ctx, security.HashRefreshToken(refreshToken), s.now().UTC())
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, apperr.ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, claimed.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		if _, err := s.repo.RevokeAllByUser(ctx, claimed.UserID); err != nil {
			return nil, err
		}
		return nil, apperr.ErrUnauthorized
	}

	return s.Issue(ctx, user)
}

// Revoke invalidates the session behind the refresh token. Revoking an
// unknown or already revoked token succeeds; revocation is idempotent.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	return s.repo.Revoke(ctx, security.HashRefreshToken(refreshToken))
}

// RevokeAll invalidates every live session for the user and returns how many
// were revoked. Used on user deletion, deactivation and forced logout.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.repo.RevokeAllByUser(ctx, userID)
}

// IsValid reports whether the refresh token would currently be accepted for
// rotation: a valid signature plus a live, unrevoked, unexpired store row.
func (s *Service) IsValid(ctx context.Context, refreshToken string) (bool, error) {
	if _, err := s.tokens.ValidateRefresh(refreshToken); err != nil {
		return false, nil
	}
	session, err := s.repo.GetByTokenHash(ctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		return false, err
	}
	return session != nil && session.Valid(s.now().UTC()), nil
}

// Sweep deletes revoked or expired session rows and returns how many were
// removed. Storage hygiene only; validity never depends on the sweep running.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.repo.DeleteStale(ctx, s.now().UTC())
}
