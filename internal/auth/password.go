package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/medequip/depot/internal/model"
)

// HashPassword validates and hashes a password.
func HashPassword(password string) (string, error) {
	if err := model.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
