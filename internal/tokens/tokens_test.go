package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/collabform/collabform/internal/models"
)

func TestGenerateAccessToken_ValidAndClaims(t *testing.T) {
	secret := "test-secret-32-bytes-should-be-long-enough"

	u := &models.User{ID: "user-123", Username: "testuser", Email: "test@example.com"}
	tokenStr, err := GenerateAccessToken(secret, u, 2*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken error: %v", err)
	}

	// parse and validate
	parsed, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if !parsed.Valid {
		t.Fatalf("token should be valid")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("claims type assertion failed")
	}
	if claims["sub"] != u.ID {
		t.Fatalf("unexpected sub claim: got=%v want=%v", claims["sub"], u.ID)
	}
	if claims["name"] != u.Username {
		t.Fatalf("unexpected name claim: got=%v want=%v", claims["name"], u.Username)
	}
}

func TestHMACVerifier_RoundTrip(t *testing.T) {
	secret := "another-secret-32-bytes-longgggg"
	u := &models.User{ID: "u2", Username: "x", Email: "x@x"}
	tokenStr, err := GenerateAccessToken(secret, u, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken error: %v", err)
	}

	ver := NewHMACVerifier(secret)
	tok, err := ver.Verify(context.Background(), tokenStr)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		t.Fatalf("Claims error: %v", err)
	}
	if claims["sub"] != "u2" {
		t.Fatalf("unexpected sub: %v", claims["sub"])
	}

	// wrong secret must fail
	if _, err := NewHMACVerifier("wrong-secret").Verify(context.Background(), tokenStr); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
}

func TestHMACVerifier_Expiry(t *testing.T) {
	secret := "expiry-secret-32-bytes-loooooong"
	u := &models.User{ID: "u3", Username: "y", Email: "y@y"}
	tokenStr, err := GenerateAccessToken(secret, u, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken error: %v", err)
	}
	if _, err := NewHMACVerifier(secret).Verify(context.Background(), tokenStr); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}
