package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"accessplane/internal/session/domain"
)

func TestClaimByTokenHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE refresh_tokens
		SET is_revoked = true
		WHERE token_hash = $1 AND NOT is_revoked AND expires_at > $2
		RETURNING `+sessionColumns)).
		WithArgs("hash-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash", "user_id", "expires_at", "is_revoked", "created_at"}).
			AddRow("s1", "hash-1", "u1", expires, true, now.Add(-time.Minute)))

	s, err := repo.ClaimByTokenHash(context.Background(), "hash-1", now)
	if err != nil {
		t.Fatalf("ClaimByTokenHash: %v", err)
	}
	if s == nil || s.ID != "s1" || !s.IsRevoked {
		t.Errorf("claimed = %+v, want the revoked row back", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestClaimByTokenHashAlreadyConsumed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()

	// The conditional update matches nothing: no row comes back.
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE refresh_tokens`)).
		WithArgs("hash-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash", "user_id", "expires_at", "is_revoked", "created_at"}))

	s, err := repo.ClaimByTokenHash(context.Background(), "hash-1", now)
	if err != nil {
		t.Fatalf("ClaimByTokenHash: %v", err)
	}
	if s != nil {
		t.Errorf("claimed = %+v, want nil for a consumed token", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRevokeAllByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET is_revoked = true WHERE user_id = $1 AND NOT is_revoked`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RevokeAllByUser: %v", err)
	}
	if n != 3 {
		t.Errorf("revoked = %d, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE is_revoked OR expires_at <= $1`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteStale(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteStale: %v", err)
	}
	if n != 7 {
		t.Errorf("deleted = %d, want 7", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetByTokenHashNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+sessionColumns)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash", "user_id", "expires_at", "is_revoked", "created_at"}))

	s, err := repo.GetByTokenHash(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if s != nil {
		t.Errorf("session = %+v, want nil", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        "s1",
		TokenHash: "hash-1",
		UserID:    "u1",
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO refresh_tokens`)).
		WithArgs(s.ID, s.TokenHash, s.UserID, s.ExpiresAt, s.IsRevoked, s.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
