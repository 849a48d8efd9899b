package services

import (
	"errors"
	"testing"
)

func TestCredentials_VerifySuccess(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCredentialService(db)
	created := createTestUser(t, db, "alice", "password123")

	user, err := svc.Verify("alice", "password123")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ID != created.ID {
		t.Fatal("expected the created user to be returned")
	}
}

func TestCredentials_VerifyCaseInsensitiveUsername(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCredentialService(db)
	createTestUser(t, db, "alice", "password123")

	for _, username := range []string{"Alice", "ALICE", "  alice  "} {
		if _, err := svc.Verify(username, "password123"); err != nil {
			t.Fatalf("Verify(%q) failed: %v", username, err)
		}
	}
}

func TestCredentials_VerifyWrongPassword(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCredentialService(db)
	createTestUser(t, db, "alice", "password123")

	_, err := svc.Verify("alice", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCredentials_VerifyUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCredentialService(db)

	_, err := svc.Verify("nobody", "password123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
