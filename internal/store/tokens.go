package store

import (
	"context"
	"fmt"
	"time"

	"github.com/medequip/depot/internal/dbx"
)

// RevokeToken blacklists a token id until its own expiry. Revoking the same
// id twice is a no-op.
func RevokeToken(ctx context.Context, db dbx.DBTX, jti string, expiresAt time.Time) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, expiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("revoking token %s: %w", jti, err)
	}
	return nil
}

// PruneRevokedTokens removes revocations whose token expired before now and
// returns how many were dropped.
func PruneRevokedTokens(ctx context.Context, db dbx.DBTX, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning revoked tokens: %w", err)
	}
	return res.RowsAffected()
}

// IsTokenRevoked reports whether jti is on the revocation list.
func IsTokenRevoked(ctx context.Context, db dbx.DBTX, jti string) (bool, error) {
	var revoked bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked); err != nil {
		return false, fmt.Errorf("checking token %s: %w", jti, err)
	}
	return revoked, nil
}
