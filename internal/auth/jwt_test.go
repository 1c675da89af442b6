package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	token, err := m.Issue("user-1", "company-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.UserID != "user-1" || claims.CompanyID != "company-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)

	token, err := m.Issue("user-1", "company-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := other.Verify(token); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestTokenExpired(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute)

	token, err := m.Issue("user-1", "company-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected verification to fail for expired token")
	}
}

func TestTokenGarbage(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	if _, err := m.Verify("not-a-token"); err == nil {
		t.Fatal("expected verification to fail for malformed token")
	}
}

func TestDefaultTTL(t *testing.T) {
	m := NewTokenManager("test-secret", 0)
	if m.TTL() != 7*24*time.Hour {
		t.Fatalf("expected 7 day default TTL, got %s", m.TTL())
	}
}
