package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.TTL() != 7*24*time.Hour {
		t.Errorf("TTL() = %v, want 7 days", ts.TTL())
	}
}

func TestNewTokenService_CustomTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.TTL() != time.Hour {
		t.Errorf("TTL() = %v, want 1h", ts.TTL())
	}
}

// =========================================================================
// GENERATE
// =========================================================================

func TestGenerate_ReturnsJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Generate() token doesn't look like a JWT: %q", token)
	}
}

func TestGenerate_EmptySubject(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate(""); err == nil {
		t.Fatal("Generate() should reject an empty user ID")
	}
}

func TestGenerate_DifferentUsersGetDifferentTokens(t *testing.T) {
	ts := newTestTokenService(t)

	token1, _ := ts.Generate("user-aaa")
	token2, _ := ts.Generate("user-bbb")

	if token1 == token2 {
		t.Error("Generate() returned identical tokens for different user IDs")
	}
}

// =========================================================================
// VALIDATE
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-abc-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("Validate() userID = %q, want %q", got, "user-abc-123")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	_, err = ts.Validate(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-123")
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", 0)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", 0)

	token, _ := ts1.Generate("user-123")

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.Validate(in); err == nil {
			t.Errorf("Validate(%q) should return an error", in)
		}
	}
}

func TestGenerateWithDuration_FutureToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", time.Hour)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	userID, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() on 1h token error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("userID = %q, want %q", userID, "user-123")
	}
}
