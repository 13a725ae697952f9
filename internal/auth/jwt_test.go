package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/sakif/habit-rewards/internal/model"
)

// newTestTokenService uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_NonPositiveTTL(t *testing.T) {
	if _, err := NewTokenService("this-is-16-chars", 0); err == nil {
		t.Fatal("NewTokenService() should reject a zero TTL")
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123", model.RoleUser)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("Generate() token doesn't look like a JWT (expected 2 dots, got %d)", got)
	}
}

func TestGenerate_RejectsBadInput(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate("", model.RoleUser); err == nil {
		t.Error("Generate() should reject an empty user id")
	}
	if _, err := ts.Generate("user-1", "superuser"); err == nil {
		t.Error("Generate() should reject an unknown role")
	}
}

func TestValidate_RoundTripCarriesRole(t *testing.T) {
	ts := newTestTokenService(t)

	for _, role := range []model.Role{model.RoleUser, model.RoleAdmin} {
		token, err := ts.Generate("google-oauth2-42", role)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		got, err := ts.Validate(token)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if got.UserID != "google-oauth2-42" || got.Role != role {
			t.Errorf("Validate() = %+v, want user google-oauth2-42 role %s", got, role)
		}
		if got.IsAdmin() != (role == model.RoleAdmin) {
			t.Errorf("IsAdmin() = %v for role %s", got.IsAdmin(), role)
		}
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", model.RoleUser, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-123", model.RoleUser)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Hour)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	token, _ := ts1.Generate("user-123", model.RoleAdmin)

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token"} {
		if _, err := ts.Validate(in); err == nil {
			t.Errorf("Validate(%q) should return an error", in)
		}
	}
}
