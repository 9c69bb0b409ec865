package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accessplane/internal/session/domain"
)

const sessionColumns = "id, token_hash, user_id, expires_at, is_revoked, created_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session row.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.TokenHash, s.UserID, s.ExpiresAt, s.IsRevoked, s.CreatedAt)
	return err
}

// GetByTokenHash returns the session for the token hash, or nil if not found.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)
	return scanSession(row)
}

// ClaimByTokenHash revokes the session in a single conditional update so that a
// token presented twice concurrently is only ever accepted once. Returns the
// claimed session, or nil when the session is missing, already revoked, or expired.
func (r *PostgresRepository) ClaimByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = true
		WHERE token_hash = $1 AND NOT is_revoked AND expires_at > $2
		RETURNING `+sessionColumns+`
	`, tokenHash, now)
	return scanSession(row)
}

// Revoke marks the session revoked. Revoking an unknown or already revoked
// token is not an error.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = true WHERE token_hash = $1
	`, tokenHash)
	return err
}

// RevokeAllByUser revokes every live session belonging to the user and returns
// how many were revoked.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET is_revoked = true WHERE user_id = $1 AND NOT is_revoked
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStale removes sessions that are revoked or past expiry and returns how
// many rows were deleted. Run periodically by the sweep worker.
func (r *PostgresRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE is_revoked OR expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.TokenHash, &s.UserID, &s.ExpiresAt, &s.IsRevoked, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
