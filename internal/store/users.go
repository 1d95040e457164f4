package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

const userSelect = `SELECT id, username, password_hash, role, created_at, deleted_at FROM users`

// CreateUser creates a new user. The role must be one of the model roles;
// the schema rejects anything else.
func CreateUser(ctx context.Context, db dbx.DBTX, username, passwordHash, role string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user %q: %w", username, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}
	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, deleted or not. Returns nil if absent.
func GetUser(ctx context.Context, db dbx.DBTX, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db dbx.DBTX, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		userSelect+` WHERE username = ? AND deleted_at IS NULL`, username))
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", username, err)
	}
	return u, nil
}

// CountUsers returns the number of active users.
func CountUsers(ctx context.Context, db dbx.DBTX) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// ListUsers returns active users, optionally restricted to one role.
func ListUsers(ctx context.Context, db dbx.DBTX, roles ...string) ([]model.User, error) {
	query := userSelect + ` WHERE deleted_at IS NULL`
	var args []any
	if len(roles) > 0 {
		query += ` AND role IN (?` + strings.Repeat(",?", len(roles)-1) + `)`
		for _, r := range roles {
			args = append(args, r)
		}
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes an active user's role.
func UpdateUserRole(ctx context.Context, db dbx.DBTX, id int64, role string) error {
	return updateUser(ctx, db, id, "role", `role = ?`, role)
}

// UpdateUserPassword replaces an active user's password hash.
func UpdateUserPassword(ctx context.Context, db dbx.DBTX, id int64, passwordHash string) error {
	return updateUser(ctx, db, id, "password", `password_hash = ?`, passwordHash)
}

// DeleteUser soft-deletes a user. The username becomes free for reuse.
func DeleteUser(ctx context.Context, db dbx.DBTX, id int64) error {
	return updateUser(ctx, db, id, "deletion", `deleted_at = CURRENT_TIMESTAMP`)
}

// updateUser applies set to the active user id. It reports common.ErrNotFound
// when no active row matched.
func updateUser(ctx context.Context, db dbx.DBTX, id int64, what, set string, args ...any) error {
	res, err := db.ExecContext(ctx,
		`UPDATE users SET `+set+` WHERE id = ? AND deleted_at IS NULL`,
		append(args, id)...,
	)
	if err != nil {
		return fmt.Errorf("updating user %d %s: %w", id, what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user %d %s: %w", id, what, err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
