// ABOUTME: Tests for JWT verification and generation
// ABOUTME: Covers claim extraction, expiry, tampering, and missing claims

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("happy", "user", nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if id.PrincipalID != "happy" {
		t.Errorf("PrincipalID mismatch: got %q, want %q", id.PrincipalID, "happy")
	}
	if id.Role != "user" {
		t.Errorf("Role mismatch: got %q, want %q", id.Role, "user")
	}
	if id.Credential != token {
		t.Error("Credential should carry the raw token for propagation")
	}
	if id.IsPrivileged() {
		t.Error("user role should not be privileged")
	}
}

func TestJWTVerifier_AdminRoleAndPermissions(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("ops", "admin", []string{"sessions:delete"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if !id.IsPrivileged() {
		t.Error("admin role should be privileged")
	}
	if !id.HasPermission("sessions:delete") {
		t.Error("expected sessions:delete permission")
	}
	if id.HasPermission("agents:approve") {
		t.Error("unexpected agents:approve permission")
	}
}

func TestJWTVerifier_Expired(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("happy", "user", nil, -time.Minute)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	v1 := NewJWTVerifier([]byte("secret-one"))
	v2 := NewJWTVerifier([]byte("secret-two"))

	token, err := v1.Generate("happy", "user", nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := v2.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTVerifier_MissingSub(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if _, err := v.Verify(signed); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("expected ErrMissingClaim, got %v", err)
	}
}
