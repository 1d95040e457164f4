package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"math/big"

	"github.com/medequip/depot/internal/auth"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// bootstrapAdmin creates the first ADMIN account when the user table is
// empty and returns its generated password. It returns "" when users exist.
func bootstrapAdmin(ctx context.Context, db *sql.DB, username string) (string, error) {
	n, err := store.CountUsers(ctx, db)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.CreateUser(ctx, db, username, hash, model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

func printAdminCredentials(w io.Writer, username, password string) {
	fmt.Fprintln(w, "Admin account created:")
	fmt.Fprintf(w, "  Username: %s\n", username)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The password is shown only once. Change it after logging in.")
}

const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"

func generatePassword(length int) (string, error) {
	out := make([]byte, length)
	limit := big.NewInt(int64(len(passwordCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}
