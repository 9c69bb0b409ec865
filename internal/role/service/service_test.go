package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"accessplane/internal/apperr"
	auditdomain "accessplane/internal/audit/domain"
	auditservice "accessplane/internal/audit/service"
	permissiondomain "accessplane/internal/permission/domain"
	"accessplane/internal/role/domain"
	"accessplane/internal/security"
	userdomain "accessplane/internal/user/domain"
)

type fakeRoleRepo struct {
	mu    sync.Mutex
	roles map[string]*domain.Role
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: make(map[string]*domain.Role)}
}

func (f *fakeRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoleRepo) GetByIDWithPermissions(_ context.Context, id string) (*domain.RoleWithPermissions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[id]
	if !ok {
		return nil, nil
	}
	return &domain.RoleWithPermissions{Role: *r}, nil
}

func (f *fakeRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRoleRepo) List(_ context.Context) ([]*domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Role
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRoleRepo) Create(_ context.Context, r *domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.roles {
		if existing.Name == r.Name {
			return apperr.ErrConflict
		}
	}
	cp := *r
	f.roles[r.ID] = &cp
	return nil
}

func (f *fakeRoleRepo) Update(_ context.Context, r *domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.roles[r.ID] = &cp
	return nil
}

func (f *fakeRoleRepo) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return false, nil
	}
	delete(f.roles, id)
	return true, nil
}

// fakePermRepo knows a fixed set of permission ids.
type fakePermRepo struct {
	known map[string]bool
}

func (f *fakePermRepo) GetByID(_ context.Context, id string) (*permissiondomain.Permission, error) {
	return nil, nil
}

func (f *fakePermRepo) GetByName(_ context.Context, name string) (*permissiondomain.Permission, error) {
	return nil, nil
}

func (f *fakePermRepo) GetByResourceAction(_ context.Context, resource string, action permissiondomain.Action) (*permissiondomain.Permission, error) {
	return nil, nil
}

func (f *fakePermRepo) CountByIDs(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if f.known[id] {
			n++
		}
	}
	return n, nil
}

func (f *fakePermRepo) CountRolesUsing(_ context.Context, id string) (int64, error) {
	return 0, nil
}

func (f *fakePermRepo) List(_ context.Context) ([]*permissiondomain.Permission, error) {
	return nil, nil
}

func (f *fakePermRepo) Create(_ context.Context, p *permissiondomain.Permission) error { return nil }
func (f *fakePermRepo) Update(_ context.Context, p *permissiondomain.Permission) error { return nil }
func (f *fakePermRepo) Delete(_ context.Context, id string) (bool, error)              { return false, nil }

// fakeUserRepo only tracks how many users hold each role.
type fakeUserRepo struct {
	byRole map[string]int64
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) List(_ context.Context, limit, offset int32) ([]*userdomain.User, int64, error) {
	return nil, 0, nil
}

func (f *fakeUserRepo) CountByRoleID(_ context.Context, roleID string) (int64, error) {
	return f.byRole[roleID], nil
}

func (f *fakeUserRepo) Create(_ context.Context, u *userdomain.User) error       { return nil }
func (f *fakeUserRepo) Update(_ context.Context, u *userdomain.User) error       { return nil }
func (f *fakeUserRepo) Delete(_ context.Context, id string) (bool, error)        { return false, nil }
func (f *fakeUserRepo) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*auditdomain.Entry
}

func (f *fakeAuditRepo) Create(_ context.Context, e *auditdomain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAuditRepo) GetByID(_ context.Context, id string) (*auditdomain.Entry, error) {
	return nil, nil
}

func (f *fakeAuditRepo) List(_ context.Context, filter auditdomain.Filter, limit, offset int32) ([]*auditdomain.Entry, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuditRepo) Aggregate(_ context.Context, group auditdomain.GroupBy, start, end *time.Time) ([]*auditdomain.Aggregation, error) {
	return nil, nil
}

func (f *fakeAuditRepo) Trail(_ context.Context, resource, resourceID string) ([]*auditdomain.Entry, error) {
	return nil, nil
}

var (
	actor = security.Identity{UserID: "u-admin", Email: "admin@example.com"}
	meta  = auditdomain.RequestMeta{IPAddress: "203.0.113.9"}
)

func newTestService(usersByRole map[string]int64) (*Service, *fakeRoleRepo, *fakeAuditRepo) {
	repo := newFakeRoleRepo()
	repo.roles["r-system"] = &domain.Role{ID: "r-system", Name: "admin", IsSystem: true}
	repo.roles["r-staff"] = &domain.Role{ID: "r-staff", Name: "staff", PermissionIDs: []string{"p1"}}

	perms := &fakePermRepo{known: map[string]bool{"p1": true, "p2": true}}
	users := &fakeUserRepo{byRole: usersByRole}
	trail := &fakeAuditRepo{}
	return NewService(repo, perms, users, auditservice.NewService(trail, nil)), repo, trail
}

func TestCreate(t *testing.T) {
	s, _, trail := newTestService(nil)
	ctx := context.Background()

	role, err := s.Create(ctx, actor, CreateInput{
		Name:          "auditor",
		PermissionIDs: []string{"p1", "p2"},
	}, meta)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if role.IsSystem {
		t.Error("service-created roles must never be system roles")
	}

	e := trail.entries[len(trail.entries)-1]
	if e.Action != auditdomain.ActionCreate || e.Resource != "roles" {
		t.Errorf("audit = %s on %s, want CREATE on roles", e.Action, e.Resource)
	}
}

func TestCreateGuards(t *testing.T) {
	s, _, _ := newTestService(nil)
	ctx := context.Background()

	if _, err := s.Create(ctx, actor, CreateInput{PermissionIDs: []string{"p1"}}, meta); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("missing name err = %v, want ErrBadRequest", err)
	}
	if _, err := s.Create(ctx, actor, CreateInput{Name: "x", PermissionIDs: []string{"p1", "p-missing"}}, meta); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("unknown permission err = %v, want ErrBadRequest", err)
	}
	if _, err := s.Create(ctx, actor, CreateInput{Name: "x", PermissionIDs: []string{"p1", "p1"}}, meta); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("duplicate permission err = %v, want ErrBadRequest", err)
	}
	if _, err := s.Create(ctx, actor, CreateInput{Name: "staff"}, meta); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate name err = %v, want ErrConflict", err)
	}
}

func TestUpdate(t *testing.T) {
	s, _, _ := newTestService(nil)
	ctx := context.Background()

	// Permission set untouched when PermissionIDs is nil.
	desc := "updated"
	role, err := s.Update(ctx, actor, "r-staff", UpdateInput{Description: &desc}, meta)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(role.PermissionIDs) != 1 || role.PermissionIDs[0] != "p1" {
		t.Errorf("PermissionIDs = %v, want unchanged [p1]", role.PermissionIDs)
	}

	// An explicit empty slice clears the set.
	role, err = s.Update(ctx, actor, "r-staff", UpdateInput{PermissionIDs: []string{}}, meta)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(role.PermissionIDs) != 0 {
		t.Errorf("PermissionIDs = %v, want empty", role.PermissionIDs)
	}
}

func TestUpdateGuards(t *testing.T) {
	s, _, _ := newTestService(nil)
	ctx := context.Background()
	name := "renamed"

	if _, err := s.Update(ctx, actor, "r-system", UpdateInput{Name: &name}, meta); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("system role err = %v, want ErrForbidden", err)
	}
	if _, err := s.Update(ctx, actor, "r-missing", UpdateInput{Name: &name}, meta); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown role err = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, actor, "r-staff", UpdateInput{PermissionIDs: []string{"p-missing"}}, meta); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("unknown permission err = %v, want ErrBadRequest", err)
	}
}

func TestDelete(t *testing.T) {
	s, repo, _ := newTestService(nil)
	ctx := context.Background()

	if err := s.Delete(ctx, actor, "r-staff", meta); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if r, _ := repo.GetByID(ctx, "r-staff"); r != nil {
		t.Error("role should be gone after delete")
	}
}

func TestDeleteGuards(t *testing.T) {
	s, _, _ := newTestService(map[string]int64{"r-staff": 3})
	ctx := context.Background()

	if err := s.Delete(ctx, actor, "r-system", meta); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("system role err = %v, want ErrForbidden", err)
	}
	if err := s.Delete(ctx, actor, "r-staff", meta); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("role in use err = %v, want ErrBadRequest", err)
	}
	if err := s.Delete(ctx, actor, "r-missing", meta); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown role err = %v, want ErrNotFound", err)
	}
}

func TestGetExpandsPermissions(t *testing.T) {
	s, _, _ := newTestService(nil)
	ctx := context.Background()

	role, err := s.Get(ctx, "r-staff")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if role.Name != "staff" {
		t.Errorf("Name = %q, want staff", role.Name)
	}
	if _, err := s.Get(ctx, "r-missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown role err = %v, want ErrNotFound", err)
	}
}
