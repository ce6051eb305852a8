package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testAuthService(ttl time.Duration) *AuthService {
	return NewAuthService(nil, &AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  ttl,
	})
}

func signTestToken(t *testing.T, s *AuthService, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestVerifyToken(t *testing.T) {
	s := testAuthService(time.Hour)

	now := time.Now()
	token := signTestToken(t, s, Claims{
		UserID:   "user-1",
		Username: "admin",
		IsAdmin:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	claims, err := s.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "admin" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	s := testAuthService(time.Hour)

	past := time.Now().Add(-2 * time.Hour)
	token := signTestToken(t, s, Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	})

	if _, err := s.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(nil, &AuthConfig{JWTSecret: "other-secret"})
	verifier := testAuthService(time.Hour)

	token := signTestToken(t, issuer, Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	s := testAuthService(time.Hour)
	if _, err := s.VerifyToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
