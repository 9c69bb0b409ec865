package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	permissiondomain "accessplane/internal/permission/domain"
)

const accessQuery = "data.accessplane.rbac.allow"

// Rego policy for the access decision. A permission set allows an action when
// it contains the exact resource:action name, or the resource:manage name.
const accessRegoPolicy = `package accessplane.rbac

default allow = false

allow if {
	input.permissions[_] == input.required
}

allow if {
	input.permissions[_] == input.manage
}
`

// OPAEvaluator evaluates access checks using in-process OPA Rego.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator compiles the access policy and returns an OPA-based evaluator.
func NewOPAEvaluator() (*OPAEvaluator, error) {
	modules := map[string]string{"rbac.rego": accessRegoPolicy}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// HealthCheck verifies that the compiled policy evaluates. Does not touch the
// database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	allowed, err := e.EvaluateAccess(ctx, []string{"users:read"}, "users", "read")
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("access policy denied its own probe")
	}
	return nil
}

// EvaluateAccess reports whether the permission set grants action on resource.
func (e *OPAEvaluator) EvaluateAccess(ctx context.Context, permissions []string, resource, action string) (bool, error) {
	if permissions == nil {
		permissions = []string{}
	}
	input := map[string]interface{}{
		"permissions": permissions,
		"required":    permissiondomain.Format(resource, action),
		"manage":      permissiondomain.Format(resource, string(permissiondomain.ActionManage)),
	}

	q := rego.New(
		rego.Query(accessQuery),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("access query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("access query returned non-boolean result")
	}
	return allowed, nil
}
