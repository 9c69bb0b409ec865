package engine

import "context"

// Evaluator answers single access checks against a permission set using OPA or
// other engines.
type Evaluator interface {
	// EvaluateAccess reports whether a holder of the given permission names may
	// perform action on resource. The manage action on a resource implies every
	// other action on it.
	EvaluateAccess(ctx context.Context, permissions []string, resource, action string) (bool, error)
	HealthCheck(ctx context.Context) error
}
