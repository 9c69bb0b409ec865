package repository

import (
	"context"
	"database/sql"
	"errors"

	"accessplane/internal/apperr"
	"accessplane/internal/db"
	"accessplane/internal/role/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a role repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the role for id with its permission id set, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM roles
		WHERE id = $1
	`, id)
	role, err := scanRole(row)
	if err != nil || role == nil {
		return role, err
	}
	if role.PermissionIDs, err = r.permissionIDs(ctx, id); err != nil {
		return nil, err
	}
	return role, nil
}

// GetByIDWithPermissions returns the role expanded to its full permission set,
// or nil if the role does not exist. Used by policy evaluation.
func (r *PostgresRepository) GetByIDWithPermissions(ctx context.Context, id string) (*domain.RoleWithPermissions, error) {
	role, err := r.GetByID(ctx, id)
	if err != nil || role == nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.resource, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &domain.RoleWithPermissions{Role: *role}
	for rows.Next() {
		var p domain.RolePermission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, err
		}
		out.Permissions = append(out.Permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByName returns the role with the given name, or nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM roles
		WHERE name = $1
	`, name)
	role, err := scanRole(row)
	if err != nil || role == nil {
		return role, err
	}
	if role.PermissionIDs, err = r.permissionIDs(ctx, role.ID); err != nil {
		return nil, err
	}
	return role, nil
}

// List returns all roles ordered by name, each with its permission id set.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM roles
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range out {
		if role.PermissionIDs, err = r.permissionIDs(ctx, role.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Create persists the role and its permission set in one transaction.
// Returns apperr.ErrConflict when the name is taken and apperr.ErrBadRequest
// when a permission id does not resolve.
func (r *PostgresRepository) Create(ctx context.Context, role *domain.Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (id, name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, role.Description, role.IsSystem, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return mapRoleErr(err)
	}
	if err := insertRolePermissions(ctx, tx, role.ID, role.PermissionIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update updates the role row and replaces its permission set in one transaction.
func (r *PostgresRepository) Update(ctx context.Context, role *domain.Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = $4 WHERE id = $1
	`, role.ID, role.Name, role.Description, role.UpdatedAt)
	if err != nil {
		return mapRoleErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
		return err
	}
	if err := insertRolePermissions(ctx, tx, role.ID, role.PermissionIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the role row; role_permissions cascade. Returns false if no row was deleted.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			// Still referenced by a user row; the service reports this as a
			// business-rule violation.
			return false, apperr.ErrBadRequest
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) permissionIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertRolePermissions(ctx context.Context, tx *sql.Tx, roleID string, permissionIDs []string) error {
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		`, roleID, pid); err != nil {
			if db.IsForeignKeyViolation(err) {
				return apperr.ErrBadRequest
			}
			return err
		}
	}
	return nil
}

func mapRoleErr(err error) error {
	if db.IsUniqueViolation(err) {
		return apperr.ErrConflict
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*domain.Role, error) {
	var role domain.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}
