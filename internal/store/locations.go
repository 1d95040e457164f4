package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

// CreateLocation creates a new stock location.
func CreateLocation(ctx context.Context, db dbx.DBTX, name, kind string) (*model.Location, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO stock_locations (name, kind) VALUES (?, ?)`,
		name, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting location id: %w", err)
	}

	return GetLocation(ctx, db, id)
}

// GetLocation returns a location by ID, including soft-deleted ones.
func GetLocation(ctx context.Context, db dbx.DBTX, id int64) (*model.Location, error) {
	l := &model.Location{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, kind, created_at, deleted_at
		 FROM stock_locations WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.Kind, &l.CreatedAt, &l.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return l, nil
}

// ListLocations returns all non-deleted locations, optionally filtered by kind.
func ListLocations(ctx context.Context, db dbx.DBTX, kind string) ([]model.Location, error) {
	query := `SELECT id, name, kind, created_at, deleted_at
	          FROM stock_locations WHERE deleted_at IS NULL`
	var args []any
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Kind, &l.CreatedAt, &l.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// RenameLocation updates a location's name.
func RenameLocation(ctx context.Context, db dbx.DBTX, id int64, name string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE stock_locations SET name = ? WHERE id = ? AND deleted_at IS NULL`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("renaming location: %w", err)
	}
	return nil
}

// DeleteLocation soft-deletes a location. It fails with
// common.ErrInvalidArgument while the location holds stock or is either end
// of a pending transfer, since verifying that transfer moves stock into it.
func DeleteLocation(ctx context.Context, db dbx.DBTX, id int64) error {
	var stocked, pending int
	err := db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM stock_levels WHERE location_id = ?),
		   (SELECT COUNT(*) FROM stock_transfers
		     WHERE state = 'pending' AND (from_location_id = ? OR to_location_id = ?))`,
		id, id, id,
	).Scan(&stocked, &pending)
	if err != nil {
		return fmt.Errorf("checking location %d usage: %w", id, err)
	}
	if stocked > 0 {
		return fmt.Errorf("location still holds %d stock entries: %w", stocked, common.ErrInvalidArgument)
	}
	if pending > 0 {
		return fmt.Errorf("location has %d pending transfers: %w", pending, common.ErrInvalidArgument)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE stock_locations SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting location: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("location %d: %w", id, common.ErrNotFound)
	}
	return nil
}
