package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/medequip/depot/internal/dbx"
)

const settingJWTSecret = "jwt_secret"

// GetSetting returns the value stored under key, or "" if unset.
func GetSetting(ctx context.Context, db dbx.DBTX, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

// PutSetting stores value under key, replacing any previous value.
func PutSetting(ctx context.Context, db dbx.DBTX, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing setting %q: %w", key, err)
	}
	return nil
}

// GetJWTSecret returns the token signing secret, generating and storing one
// on first use. INSERT OR IGNORE followed by a re-read keeps concurrent
// startups on the same value.
func GetJWTSecret(ctx context.Context, db dbx.DBTX) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		settingJWTSecret, hex.EncodeToString(buf),
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	return GetSetting(ctx, db, settingJWTSecret)
}
