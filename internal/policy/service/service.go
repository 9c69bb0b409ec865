package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"accessplane/internal/policy/engine"
	roledomain "accessplane/internal/role/domain"
	rolerepository "accessplane/internal/role/repository"
	userrepository "accessplane/internal/user/repository"
)

// Decision is the outcome of a single access check.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ReasonAllowed      = "allowed"
	ReasonUserNotFound = "user not found"
	ReasonUserInactive = "user inactive"
	ReasonRoleNotFound = "role not found"
	ReasonNotPermitted = "permission not granted"
)

// Service answers authorization questions for users. Single checks go through
// the policy evaluator, which applies the manage wildcard; the bulk checks and
// the effective-permission listing match exact names only.
type Service struct {
	userRepo  userrepository.Repository
	roleRepo  rolerepository.Repository
	evaluator engine.Evaluator
	decisions metric.Int64Counter
}

// NewService returns a policy service over the given repositories and evaluator.
func NewService(userRepo userrepository.Repository, roleRepo rolerepository.Repository, evaluator engine.Evaluator) *Service {
	decisions, _ := otel.Meter("accessplane/policy").Int64Counter("policy.decisions",
		metric.WithDescription("Access decisions by outcome."))
	return &Service{
		userRepo:  userRepo,
		roleRepo:  roleRepo,
		evaluator: evaluator,
		decisions: decisions,
	}
}

// Decide reports whether the user may perform action on resource. Every
// failure to resolve the user or role denies with a reason instead of
// erroring; only infrastructure failures return an error.
func (s *Service) Decide(ctx context.Context, userID, resource, action string) (Decision, error) {
	role, reason, err := s.resolveRole(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if role == nil {
		return s.record(ctx, Decision{Allowed: false, Reason: reason}), nil
	}

	allowed, err := s.evaluator.EvaluateAccess(ctx, role.PermissionNames(), resource, action)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: allowed, Reason: ReasonAllowed}
	if !allowed {
		d.Reason = ReasonNotPermitted
	}
	return s.record(ctx, d), nil
}

// HasAny reports whether the user holds at least one of the named permissions.
// Names are matched exactly; manage does not substitute here.
func (s *Service) HasAny(ctx context.Context, userID string, names []string) (bool, error) {
	held, err := s.effectiveSet(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if held[n] {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every one of the named permissions.
// Names are matched exactly; manage does not substitute here.
func (s *Service) HasAll(ctx context.Context, userID string, names []string) (bool, error) {
	held, err := s.effectiveSet(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if !held[n] {
			return false, nil
		}
	}
	return true, nil
}

// ListEffectivePermissions returns the permission names the user's role
// grants. Missing or inactive users and dangling roles yield an empty list.
func (s *Service) ListEffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	role, _, err := s.resolveRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return []string{}, nil
	}
	return role.PermissionNames(), nil
}

func (s *Service) resolveRole(ctx context.Context, userID string) (*roledomain.RoleWithPermissions, string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, ReasonUserNotFound, nil
	}
	if !user.IsActive {
		return nil, ReasonUserInactive, nil
	}
	role, err := s.roleRepo.GetByIDWithPermissions(ctx, user.RoleID)
	if err != nil {
		return nil, "", err
	}
	if role == nil {
		// The role was deleted out from under the user; fail closed.
		return nil, ReasonRoleNotFound, nil
	}
	return role, "", nil
}

func (s *Service) effectiveSet(ctx context.Context, userID string) (map[string]bool, error) {
	role, _, err := s.resolveRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool)
	if role == nil {
		return held, nil
	}
	for _, name := range role.PermissionNames() {
		held[name] = true
	}
	return held, nil
}

func (s *Service) record(ctx context.Context, d Decision) Decision {
	if s.decisions != nil {
		s.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("allowed", d.Allowed),
			attribute.String("reason", d.Reason),
		))
	}
	return d
}
