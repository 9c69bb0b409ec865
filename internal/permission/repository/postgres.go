package repository

import (
	"context"
	"database/sql"
	"errors"

	"accessplane/internal/apperr"
	"accessplane/internal/db"
	"accessplane/internal/permission/domain"
)

const permissionColumns = "id, name, description, resource, action, created_at, updated_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a permission repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the permission for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+permissionColumns+`
		FROM permissions
		WHERE id = $1
	`, id)
	return scanPermission(row)
}

// GetByName returns the permission with the given name, or nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+permissionColumns+`
		FROM permissions
		WHERE name = $1
	`, name)
	return scanPermission(row)
}

// GetByResourceAction returns the permission for the (resource, action) pair, or nil if not found.
func (r *PostgresRepository) GetByResourceAction(ctx context.Context, resource string, action domain.Action) (*domain.Permission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+permissionColumns+`
		FROM permissions
		WHERE resource = $1 AND action = $2
	`, resource, string(action))
	return scanPermission(row)
}

// CountByIDs returns how many of the given ids exist. Services use this to
// validate a role's permission set before writing it.
func (r *PostgresRepository) CountByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM permissions WHERE id = ANY($1)
	`, ids).Scan(&n)
	return n, err
}

// CountRolesUsing returns how many roles currently include the permission.
func (r *PostgresRepository) CountRolesUsing(ctx context.Context, id string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM role_permissions WHERE permission_id = $1
	`, id).Scan(&n)
	return n, err
}

// List returns all permissions ordered by resource then action.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+permissionColumns+`
		FROM permissions
		ORDER BY resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create persists the permission. Returns apperr.ErrConflict when the name or
// the (resource, action) pair is already registered.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Permission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permissions (`+permissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Description, p.Resource, string(p.Action), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.ErrConflict
		}
		return err
	}
	return nil
}

// Update updates the existing permission record.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Permission) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE permissions
		SET name = $2, description = $3, resource = $4, action = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Resource, string(p.Action), p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.ErrConflict
		}
		return err
	}
	return nil
}

// Delete removes the permission row. Returns false if no row was deleted.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (*domain.Permission, error) {
	var (
		p      domain.Permission
		action string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &action,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Action = domain.Action(action)
	return &p, nil
}
