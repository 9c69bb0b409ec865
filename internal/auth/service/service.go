package service

import (
	"context"
	"log"
	"time"

	"accessplane/internal/apperr"
	auditdomain "accessplane/internal/audit/domain"
	auditservice "accessplane/internal/audit/service"
	"accessplane/internal/security"
	sessionservice "accessplane/internal/session/service"
	userdomain "accessplane/internal/user/domain"
	userrepository "accessplane/internal/user/repository"
)

// Service implements authentication flows: login, logout and password change.
// Every flow leaves an audit entry, including the failures.
type Service struct {
	userRepo userrepository.Repository
	sessions *sessionservice.Service
	hasher   *security.Hasher
	audit    *auditservice.Service
	now      func() time.Time
}

// NewService returns an auth service.
func NewService(userRepo userrepository.Repository, sessions *sessionservice.Service, hasher *security.Hasher, audit *auditservice.Service) *Service {
	return &Service{userRepo: userRepo, sessions: sessions, hasher: hasher, audit: audit, now: time.Now}
}

// Login verifies the credentials and issues a token pair. Unknown emails, bad
// passwords and deactivated accounts are all recorded as LOGIN_FAILED; the
// unknown-email case is attributed to the system actor since there is no user
// to attribute it to.
func (s *Service) Login(ctx context.Context, email, password string, meta auditdomain.RequestMeta) (*sessionservice.TokenPair, *userdomain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		s.append(ctx, &auditdomain.Entry{
			ActorID:    auditdomain.SystemActorID,
			ActorEmail: email,
			Action:     auditdomain.ActionLoginFailed,
			Resource:   "auth",
			Metadata:   map[string]any{"reason": "unknown email"},
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		})
		return nil, nil, apperr.ErrUnauthorized
	}

	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.append(ctx, &auditdomain.Entry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditdomain.ActionLoginFailed,
			Resource:   "auth",
			Metadata:   map[string]any{"reason": "bad password"},
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		})
		return nil, nil, apperr.ErrUnauthorized
	}

	if !user.IsActive {
		s.append(ctx, &auditdomain.Entry{
			ActorID:    user.ID,
			ActorEmail: user.Email,
			Action:     auditdomain.ActionLoginFailed,
			Resource:   "auth",
			Metadata:   map[string]any{"reason": "account deactivated"},
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		})
		return nil, nil, apperr.ErrForbidden
	}

	pair, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("auth: update last login for %s: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	s.append(ctx, &auditdomain.Entry{
		ActorID:    user.ID,
		ActorEmail: user.Email,
		Action:     auditdomain.ActionLogin,
		Resource:   "auth",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	return pair, user, nil
}

// Logout revokes the presented refresh token and records the logout. Always
// succeeds for well-formed requests; a stale token is still a logout.
func (s *Service) Logout(ctx context.Context, actor security.Identity, refreshToken string, meta auditdomain.RequestMeta) error {
	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.append(ctx, &auditdomain.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     auditdomain.ActionLogout,
		Resource:   "auth",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// ChangePassword replaces the user's password after verifying the current one,
// then revokes every existing session so stolen refresh tokens die with the
// old password.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta auditdomain.RequestMeta) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.ErrNotFound
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(currentPassword)); err != nil {
		return apperr.ErrUnauthorized
	}

	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return err
	}

	s.append(ctx, &auditdomain.Entry{
		ActorID:    user.ID,
		ActorEmail: user.Email,
		Action:     auditdomain.ActionPasswordChange,
		Resource:   "users",
		ResourceID: user.ID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

func (s *Service) append(ctx context.Context, e *auditdomain.Entry) {
	if _, err := s.audit.Append(ctx, e); err != nil {
		log.Printf("auth: audit append failed: %v", err)
	}
}
