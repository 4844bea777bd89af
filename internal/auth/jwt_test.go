package auth

import (
	"testing"

	"github.com/nexalabs/nexa-server/domain/entities"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	signer, err := NewSignerFromEnv()
	if err != nil {
		t.Fatalf("NewSignerFromEnv failed: %v", err)
	}
	return signer
}

func TestTokenRoundTrip(t *testing.T) {
	signer := testSigner(t)
	identity := entities.UserIdentity{DisplayName: "Dana", Mobile: "5550100", Role: entities.RoleStandard}

	token, _, err := signer.GenerateSessionToken(identity)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	parsed, err := signer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if *parsed != identity {
		t.Errorf("expected %+v, got %+v", identity, *parsed)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	signer := testSigner(t)
	token, _, err := signer.GenerateSessionToken(entities.UserIdentity{
		DisplayName: "Dana", Mobile: "5550100", Role: entities.RoleStandard,
	})
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	other := &Signer{secret: []byte("different-secret")}
	if _, err := other.ValidateToken(token); err == nil {
		t.Errorf("expected validation failure for wrong secret")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	signer := testSigner(t)
	if _, err := signer.ValidateToken("not-a-token"); err == nil {
		t.Errorf("expected validation failure for malformed token")
	}
}

func TestSignerRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := NewSignerFromEnv(); err == nil {
		t.Errorf("expected error for missing JWT_SECRET")
	}
}
