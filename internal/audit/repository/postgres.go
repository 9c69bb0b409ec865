package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"accessplane/internal/audit/domain"
)

const auditColumns = "id, actor_id, actor_email, action, resource, resource_id, metadata, ip_address, user_agent, ts"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends the entry to the trail.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.ActorID, e.ActorEmail, string(e.Action), e.Resource, e.ResourceID,
		meta, e.IPAddress, e.UserAgent, e.Timestamp)
	return err
}

// GetByID returns the entry for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE id = $1
	`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// List returns entries matching the filter, newest first, plus the total match count.
// All filter fields are combined with AND.
func (r *PostgresRepository) List(ctx context.Context, f domain.Filter, limit, offset int32) ([]*domain.Entry, int64, error) {
	where, args := buildFilter(f)

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Aggregate groups the trail by action, resource or actor, within the optional
// inclusive time range. Actor aggregation is capped at the 100 most active
// actors; the other dimensions have small cardinality and are returned in full.
func (r *PostgresRepository) Aggregate(ctx context.Context, group domain.GroupBy, start, end *time.Time) ([]*domain.Aggregation, error) {
	var col string
	switch group {
	case domain.GroupByAction:
		col = "action"
	case domain.GroupByResource:
		col = "resource"
	case domain.GroupByActor:
		col = "actor_id"
	default:
		return nil, fmt.Errorf("aggregate: unknown group %q", group)
	}

	where, args := buildFilter(domain.Filter{StartDate: start, EndDate: end})
	query := `
		SELECT ` + col + `, count(*), min(ts), max(ts)
		FROM audit_logs` + where + `
		GROUP BY ` + col + `
		ORDER BY count(*) DESC`
	if group == domain.GroupByActor {
		query += `
		LIMIT 100`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Aggregation
	for rows.Next() {
		var a domain.Aggregation
		if err := rows.Scan(&a.Group, &a.Count, &a.FirstOccurrence, &a.LastOccurrence); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Trail returns every entry recorded against one resource instance, oldest first.
func (r *PostgresRepository) Trail(ctx context.Context, resource, resourceID string) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE resource = $1 AND resource_id = $2
		ORDER BY ts ASC
	`, resource, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildFilter(f domain.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.StartDate != nil {
		add("ts >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("ts <= $%d", *f.EndDate)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.Entry, error) {
	var (
		e      domain.Entry
		action string
		meta   []byte
	)
	err := row.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &action, &e.Resource,
		&e.ResourceID, &meta, &e.IPAddress, &e.UserAgent, &e.Timestamp)
	if err != nil {
		return nil, err
	}
	e.Action = domain.Action(action)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
