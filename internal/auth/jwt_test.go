package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseJWTReturnsClaims(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "tenant-a", "operator")

	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.TenantID != "tenant-a" || claims.Role != "operator" {
		t.Fatalf("claims = %s/%s, want tenant-a/operator", claims.TenantID, claims.Role)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", claims.Subject)
	}
}

func TestParseJWTRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong secret", mustToken(t, []byte("other-secret"), "tenant-a", "viewer")},
		{"missing tenant", signToken(t, secret, Claims{
			Role:             "viewer",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
		})},
		{"unknown role", signToken(t, secret, Claims{
			TenantID:         "tenant-a",
			Role:             "superuser",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
		})},
		{"no expiry", signToken(t, secret, Claims{
			TenantID: "tenant-a",
			Role:     "viewer",
		})},
		{"expired", signToken(t, secret, Claims{
			TenantID: "tenant-a",
			Role:     "viewer",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})},
	}
	for _, tc := range cases {
		if _, err := ParseJWT(tc.token, secret); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err = %v, want ErrInvalidToken", tc.name, err)
		}
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "tenant-a", RoleAdmin, "user-7")

	if got := TenantIDFromContext(ctx); got != "tenant-a" {
		t.Fatalf("tenant = %q, want tenant-a", got)
	}
	if got := RoleFromContext(ctx); got != RoleAdmin {
		t.Fatalf("role = %q, want admin", got)
	}
	if got := SubjectFromContext(ctx); got != "user-7" {
		t.Fatalf("subject = %q, want user-7", got)
	}

	empty := IdentityFromContext(context.Background())
	if empty != (Identity{}) {
		t.Fatalf("identity without auth = %+v, want zero", empty)
	}
}
