package security

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	id := Identity{UserID: "u1", Email: "u1@example.com", RoleID: "r1"}
	token, jti, expiresAt, err := p.IssueAccess(id)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if jti == "" {
		t.Error("jti should be set")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiresAt should be in the future")
	}

	got, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if got != id {
		t.Errorf("identity = %+v, want %+v", got, id)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	id := Identity{UserID: "u1", Email: "u1@example.com", RoleID: "r1"}
	token, _, _, err := p.IssueRefresh(id)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	got, err := p.ValidateRefresh(token)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if got != id {
		t.Errorf("identity = %+v, want %+v", got, id)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := p.ValidateAccess(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateAccess(%q) err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestValidateRejectsWrongIssuerAndAudience(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	issuing := NewTokenProvider(signer, pub, "other-issuer", "other-audience", time.Minute, time.Hour)
	validating := NewTokenProvider(signer, pub, "test-issuer", "test-audience", time.Minute, time.Hour)

	token, _, _, err := issuing.IssueAccess(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := validating.ValidateAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("cross-issuer validate err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	p := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -time.Minute, -time.Minute)
	token, _, _, err := p.IssueAccess(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token validate err = %v, want ErrInvalidToken", err)
	}
}

func TestHashRefreshTokenIsDeterministic(t *testing.T) {
	a := HashRefreshToken("some-token")
	b := HashRefreshToken("some-token")
	c := HashRefreshToken("other-token")
	if a != b {
		t.Error("same input must hash identically")
	}
	if a == c {
		t.Error("different inputs must not collide")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
