package utils

import (
	"errors"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("floor-is-lava")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := CheckPasswordHash("floor-is-lava", hash); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPasswordHash("floor-is-ice", hash); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestHashPasswordRejectsShortPassword(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected an error for a short password")
	}
}

func TestCheckPasswordHashUnusableHash(t *testing.T) {
	err := CheckPasswordHash("whatever", "not-a-bcrypt-hash")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected a hash error, got %v", err)
	}
}
