package engine

import (
	"context"
	"testing"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e, err := NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_EvaluateAccess(t *testing.T) {
	e, err := NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name        string
		permissions []string
		resource    string
		action      string
		want        bool
	}{
		{
			name:        "exact match",
			permissions: []string{"users:read", "roles:read"},
			resource:    "users",
			action:      "read",
			want:        true,
		},
		{
			name:        "manage implies other actions",
			permissions: []string{"users:manage"},
			resource:    "users",
			action:      "delete",
			want:        true,
		},
		{
			name:        "manage on one resource does not leak to another",
			permissions: []string{"users:manage"},
			resource:    "roles",
			action:      "read",
			want:        false,
		},
		{
			name:        "missing permission",
			permissions: []string{"users:read"},
			resource:    "users",
			action:      "delete",
			want:        false,
		},
		{
			name:        "empty set",
			permissions: nil,
			resource:    "users",
			action:      "read",
			want:        false,
		},
		{
			name:        "manage action itself requires manage",
			permissions: []string{"users:create", "users:read", "users:update", "users:delete"},
			resource:    "users",
			action:      "manage",
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvaluateAccess(ctx, tt.permissions, tt.resource, tt.action)
			if err != nil {
				t.Fatalf("EvaluateAccess: %v", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateAccess(%v, %s, %s) = %v, want %v",
					tt.permissions, tt.resource, tt.action, got, tt.want)
			}
		})
	}
}
