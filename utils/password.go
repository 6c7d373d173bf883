package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 12

var ErrPasswordMismatch = errors.New("password does not match")

// HashPassword готовит значение для STAFF_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("staff password must be at least 8 characters")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash returns ErrPasswordMismatch for a wrong password and a
// different error when the hash itself cannot be used.
func CheckPasswordHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("unusable password hash: %w", err)
	}
}
